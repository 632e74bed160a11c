package player

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xinia/radiowidget/internal/backoff"
)

// fakePlayerScript builds an executable that ignores its arguments and
// stays alive until signalled, standing in for the player binary.
func fakePlayerScript(t *testing.T, dir string) string {
	t.Helper()
	script := filepath.Join(dir, "fakeplayer")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755); err != nil {
		t.Fatalf("write fake player: %v", err)
	}
	return script
}

// serveSocket brings up a unix listener at path shortly after the test
// starts, so the spawn's stale-socket removal has already happened, and
// drains whatever connects.
func serveSocket(t *testing.T, path string) {
	t.Helper()
	listeners := make(chan net.Listener, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		l, err := net.Listen("unix", path)
		if err != nil {
			return
		}
		listeners <- l
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, conn)
		}
	}()
	t.Cleanup(func() {
		select {
		case l := <-listeners:
			l.Close()
		default:
		}
	})
}

func TestStart_ObserverRegistrationFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "ipc.sock")
	serveSocket(t, sock)

	// The first control connection comes up with its peer already gone,
	// so the observer registration writes cannot succeed; reconnect
	// attempts fail outright.
	var dials atomic.Int32
	deadDialer := func(context.Context, string) (net.Conn, error) {
		if dials.Add(1) > 1 {
			return nil, errors.New("dial refused")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	m := NewMPV(Config{
		Binary:     fakePlayerScript(t, dir),
		SocketPath: sock,
		Transport: TransportConfig{
			Dial:          deadDialer,
			Backoff:       backoff.Policy{Base: time.Millisecond, Max: time.Millisecond},
			MaxReconnects: 1,
		},
	})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded over a dead control connection")
	}
	if !strings.Contains(err.Error(), "register observers") {
		t.Errorf("Start error = %v, want observer registration failure", err)
	}

	// The failed start leaves neither the process nor the transport
	// behind.
	if m.Alive() {
		t.Error("player process still running after failed Start")
	}
	if serr := m.Send(SetPause(true)); !errors.Is(serr, ErrTransportClosed) {
		t.Errorf("Send after failed Start = %v, want ErrTransportClosed", serr)
	}
}
