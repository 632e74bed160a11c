package player

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xinia/radiowidget/internal/backoff"
)

// pipeDialer hands out net.Pipe connections, exposing the server ends
// and optionally failing dials.
type pipeDialer struct {
	servers chan net.Conn
	fail    atomic.Bool
	dials   atomic.Int32
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{servers: make(chan net.Conn, 8)}
}

func (d *pipeDialer) dial(context.Context, string) (net.Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func fastTransport(d *pipeDialer, maxReconnects int) *Transport {
	return NewTransport(TransportConfig{
		Dial:          d.dial,
		Backoff:       backoff.Policy{Base: time.Millisecond, Max: time.Millisecond},
		MaxReconnects: maxReconnects,
	})
}

func waitEvent(t *testing.T, tr *Transport, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestTransport_ConnectAndReceive(t *testing.T) {
	d := newPipeDialer()
	tr := fastTransport(d, 3)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "/tmp/test.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-d.servers
	defer server.Close()

	waitEvent(t, tr, EventConnected)

	go server.Write([]byte(`{"event":"property-change","id":1,"name":"pause","data":false}` + "\n" +
		`this line is garbage` + "\n" +
		`{"event":"start-file"}` + "\n"))

	ev := waitEvent(t, tr, EventPropertyChange)
	if ev.Name != "pause" || ev.Data != false {
		t.Errorf("property event = %+v", ev)
	}
	waitEvent(t, tr, EventStartFile)

	if got := tr.MalformedLines(); got != 1 {
		t.Errorf("MalformedLines() = %d, want 1", got)
	}
}

func TestTransport_ConnectFails(t *testing.T) {
	d := newPipeDialer()
	d.fail.Store(true)
	tr := fastTransport(d, 3)
	defer tr.Close()

	err := tr.Connect(context.Background(), "/tmp/missing.sock")
	if !errors.Is(err, ErrSocketUnavailable) {
		t.Errorf("Connect error = %v, want ErrSocketUnavailable", err)
	}
}

func TestTransport_SendWritesLine(t *testing.T) {
	d := newPipeDialer()
	tr := fastTransport(d, 3)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "/tmp/test.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-d.servers
	defer server.Close()

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(server)
		if scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	if err := tr.Send(SetPause(true)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case line := <-lines:
		want := `{"command":["set_property","pause",true]}`
		if line != want {
			t.Errorf("wire line = %q, want %q", line, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no line received")
	}
}

func TestTransport_SendWhileDisconnected_OneReconnectThenFail(t *testing.T) {
	d := newPipeDialer()
	tr := fastTransport(d, 1)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "/tmp/test.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-d.servers
	waitEvent(t, tr, EventConnected)

	// Drop the connection and make redials fail: the background
	// reconnect exhausts its single attempt and the transport is lost.
	d.fail.Store(true)
	server.Close()
	waitEvent(t, tr, EventDisconnected)
	waitEvent(t, tr, EventLost)

	if err := tr.Send(SetPause(true)); !errors.Is(err, ErrTransportLost) {
		t.Errorf("Send after lost = %v, want ErrTransportLost", err)
	}

	// Re-arm with dials still failing: Send makes exactly one fresh
	// attempt and reports the connection closed.
	tr.Rearm()
	before := d.dials.Load()
	err := tr.Send(SetPause(true))
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Send after rearm = %v, want ErrTransportClosed", err)
	}
	if got := d.dials.Load() - before; got != 1 {
		t.Errorf("Send dialed %d times, want exactly 1", got)
	}
}

func TestTransport_ReconnectsAfterDrop(t *testing.T) {
	d := newPipeDialer()
	tr := fastTransport(d, 5)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "/tmp/test.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-d.servers
	waitEvent(t, tr, EventConnected)

	server.Close()
	waitEvent(t, tr, EventDisconnected)

	// The dialer still works, so the transport comes back by itself.
	waitEvent(t, tr, EventConnected)
	server2 := <-d.servers
	defer server2.Close()

	go server2.Write([]byte(`{"event":"end-file","reason":"eof"}` + "\n"))
	ev := waitEvent(t, tr, EventEndFile)
	if ev.Reason != "eof" {
		t.Errorf("Reason = %q, want eof", ev.Reason)
	}
}

func TestTransport_RearmAllowsRecovery(t *testing.T) {
	d := newPipeDialer()
	tr := fastTransport(d, 1)
	defer tr.Close()

	if err := tr.Connect(context.Background(), "/tmp/test.sock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	server := <-d.servers
	waitEvent(t, tr, EventConnected)

	d.fail.Store(true)
	server.Close()
	waitEvent(t, tr, EventLost)

	// Socket comes back; after Rearm the next Send reconnects. Drain
	// the fresh server end so the synchronous pipe write completes.
	d.fail.Store(false)
	tr.Rearm()
	go func() {
		server2 := <-d.servers
		io.Copy(io.Discard, server2)
	}()
	if err := tr.Send(SetPause(false)); err != nil {
		t.Fatalf("Send after rearm: %v", err)
	}
	waitEvent(t, tr, EventConnected)
}
