// Package player owns the external media player process and its JSON
// IPC control socket. Audio never enters this process: the player is
// spawned headless, driven by line-delimited commands, and watched
// through its asynchronous event stream.
package player

import (
	"context"
	"fmt"
	"time"
)

// Backend is the supervisor's view of a running player: a command
// sink and an event source. Implemented by MPV and by the test mock.
type Backend interface {
	// Start spawns the process (if any) and connects the control
	// channel. Observers for pause, volume and media-title are
	// registered before Start returns.
	Start(ctx context.Context) error

	// Send issues one command on the control channel.
	Send(cmd Command) error

	// Events is the merged stream of IPC events and process lifecycle
	// events. It stays open until Shutdown.
	Events() <-chan Event

	// Alive reports whether the player process is running.
	Alive() bool

	// Shutdown closes the control channel and terminates the process,
	// killing it if it outlives the grace period.
	Shutdown(grace time.Duration) error
}

// Config tunes the MPV backend.
type Config struct {
	Binary        string // player executable, default "mpv"
	SocketPath    string // control socket path under the runtime dir
	ConnectWindow time.Duration
	ExtraArgs     []string
	Transport     TransportConfig
}

// MPV runs mpv as a child process and speaks its IPC protocol.
type MPV struct {
	cfg       Config
	proc      *Process
	transport *Transport
	events    chan Event
}

var _ Backend = (*MPV)(nil)

// NewMPV creates an unstarted backend.
func NewMPV(cfg Config) *MPV {
	if cfg.ConnectWindow <= 0 {
		cfg.ConnectWindow = DefaultConnectWindow
	}
	return &MPV{
		cfg:    cfg,
		events: make(chan Event, 64),
	}
}

// Start spawns mpv, waits for its control socket, connects the
// transport and registers property observers.
func (m *MPV) Start(ctx context.Context) error {
	if m.cfg.SocketPath == "" {
		return fmt.Errorf("%w: no socket path configured", ErrSpawnFailed)
	}

	proc, err := StartProcess(m.cfg.Binary, m.cfg.SocketPath, m.cfg.ExtraArgs...)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectWindow)
	defer cancel()
	if err := proc.WaitForSocket(waitCtx, m.cfg.SocketPath); err != nil {
		_ = proc.Terminate(time.Second)
		return err
	}

	transport := NewTransport(m.cfg.Transport)
	if err := transport.Connect(ctx, m.cfg.SocketPath); err != nil {
		_ = proc.Terminate(time.Second)
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	for _, cmd := range []Command{
		ObserveProperty(ObserverPause, "pause"),
		ObserveProperty(ObserverVolume, "volume"),
		ObserveProperty(ObserverMediaTitle, "media-title"),
	} {
		if err := transport.Send(cmd); err != nil {
			_ = transport.Close()
			_ = proc.Terminate(time.Second)
			return fmt.Errorf("register observers: %w", err)
		}
	}

	m.proc = proc
	m.transport = transport
	go m.forward()
	return nil
}

// forward merges transport events with process exit into one stream.
func (m *MPV) forward() {
	procDone := m.proc.Done()
	for {
		select {
		case ev := <-m.transport.Events():
			select {
			case m.events <- ev:
			case <-m.transport.Done():
				return
			}
		case <-procDone:
			exitErr := m.proc.ExitError()
			reason := "player process exited"
			if exitErr != nil {
				reason = fmt.Sprintf("player process exited: %v", exitErr)
			}
			select {
			case m.events <- Event{Kind: EventProcessExited, Reason: reason, Err: exitErr}:
			case <-m.transport.Done():
			}
			procDone = nil // report once; transport events may still drain
		case <-m.transport.Done():
			return
		}
	}
}

// Send issues a command over the control socket.
func (m *MPV) Send(cmd Command) error {
	if m.transport == nil {
		return ErrTransportClosed
	}
	return m.transport.Send(cmd)
}

// Events returns the merged event stream.
func (m *MPV) Events() <-chan Event {
	return m.events
}

// Alive reports whether the mpv process is running.
func (m *MPV) Alive() bool {
	return m.proc != nil && m.proc.Alive()
}

// Shutdown closes the transport and terminates the process.
func (m *MPV) Shutdown(grace time.Duration) error {
	if m.transport != nil {
		_ = m.transport.Close()
	}
	if m.proc != nil {
		return m.proc.Terminate(grace)
	}
	return nil
}
