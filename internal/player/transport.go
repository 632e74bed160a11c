package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xinia/radiowidget/internal/backoff"
)

// Dialer opens a connection to the player's control endpoint. The
// default dials a unix socket; tests inject net.Pipe.
type Dialer func(ctx context.Context, path string) (net.Conn, error)

func unixDialer(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

const (
	defaultMaxReconnects = 5
	defaultDialTimeout   = 2 * time.Second
)

// TransportConfig tunes the control socket transport.
type TransportConfig struct {
	Dial          Dialer
	Backoff       backoff.Policy
	MaxReconnects int // reconnect attempts before giving up until Rearm
}

// Transport is the line transport to the player's control socket. One
// goroutine owns each connection's read loop and feeds decoded events
// into a single consumer channel; writes are serialized through Send.
//
// At most one live connection exists at a time. On a dropped
// connection the transport reconnects with backoff; once the budget is
// exhausted it emits EventLost and refuses traffic until Rearm.
type Transport struct {
	cfg  TransportConfig
	path string

	mu     sync.Mutex // guards conn, gen, lost, closed
	sendMu sync.Mutex // one in-flight write at a time
	conn   net.Conn
	gen    int
	lost   bool
	closed bool

	events    chan Event
	done      chan struct{}
	malformed atomic.Int64
}

// NewTransport creates an unconnected transport.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.Dial == nil {
		cfg.Dial = unixDialer
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.Transport()
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultMaxReconnects
	}
	return &Transport{
		cfg:    cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Connect opens the control socket and starts the read loop.
func (t *Transport) Connect(ctx context.Context, path string) error {
	conn, err := t.cfg.Dial(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSocketUnavailable, path, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrTransportClosed
	}
	t.path = path
	t.install(conn)
	t.mu.Unlock()

	t.emit(Event{Kind: EventConnected})
	return nil
}

// install swaps in a new connection and starts its read loop.
// Caller holds t.mu.
func (t *Transport) install(conn net.Conn) {
	t.conn = conn
	t.gen++
	t.lost = false
	go t.readLoop(conn, t.gen)
}

// Events returns the decoded event stream. The channel stays open for
// the life of the transport; use Done to detect shutdown.
func (t *Transport) Events() <-chan Event {
	return t.events
}

// Done is closed when the transport shuts down for good.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// MalformedLines reports how many undecodable lines were skipped.
func (t *Transport) MalformedLines() int64 {
	return t.malformed.Load()
}

// Send serializes the command and writes it as one protocol line. If
// the connection has dropped it makes a single immediate reconnect
// attempt before failing with ErrTransportClosed.
func (t *Transport) Send(cmd Command) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.lost {
		t.mu.Unlock()
		return ErrTransportLost
	}
	conn := t.conn
	path := t.path
	t.mu.Unlock()

	if conn == nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
		fresh, err := t.cfg.Dial(ctx, path)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: reconnect failed: %v", ErrTransportClosed, err)
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			fresh.Close()
			return ErrTransportClosed
		}
		if t.conn == nil {
			t.install(fresh)
		} else {
			// A background reconnect won the race.
			fresh.Close()
		}
		conn = t.conn
		t.mu.Unlock()
		t.emit(Event{Kind: EventConnected})
	}

	buf, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	t.sendMu.Lock()
	_, werr := conn.Write(buf)
	t.sendMu.Unlock()
	if werr != nil {
		// The read loop on this connection will notice too and drive
		// the reconnect; just report the failed write.
		return fmt.Errorf("%w: %v", ErrTransportClosed, werr)
	}
	return nil
}

// Rearm clears the lost state after the reconnect budget was
// exhausted, allowing the next Send to dial again.
func (t *Transport) Rearm() {
	t.mu.Lock()
	t.lost = false
	t.mu.Unlock()
}

// Close shuts the transport down for good.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	close(t.done)
	if conn != nil {
		conn.Close()
	}
	return nil
}

// readLoop decodes lines from one connection until it drops. Malformed
// lines are counted and skipped, never fatal.
func (t *Transport) readLoop(conn net.Conn, gen int) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, ok := parseEvent(line)
		if !ok {
			if !json.Valid(line) {
				t.malformed.Add(1)
			}
			continue
		}
		t.emit(ev)
	}
	t.handleDisconnect(conn, gen)
}

// handleDisconnect runs the reconnect policy after a connection drop.
func (t *Transport) handleDisconnect(conn net.Conn, gen int) {
	t.mu.Lock()
	if t.closed || t.gen != gen {
		// Shut down, or a newer connection already took over.
		t.mu.Unlock()
		return
	}
	t.conn = nil
	path := t.path
	t.mu.Unlock()
	conn.Close()

	t.emit(Event{Kind: EventDisconnected})

	var lastErr error
	for attempt := range t.cfg.MaxReconnects {
		if !t.sleep(attempt) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
		fresh, err := t.cfg.Dial(ctx, path)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			fresh.Close()
			return
		}
		if t.conn != nil {
			// Send already reconnected.
			t.mu.Unlock()
			fresh.Close()
			return
		}
		t.install(fresh)
		t.mu.Unlock()
		t.emit(Event{Kind: EventConnected})
		return
	}

	t.mu.Lock()
	t.lost = true
	t.mu.Unlock()
	t.emit(Event{Kind: EventLost, Err: fmt.Errorf("%w: %v", ErrTransportLost, lastErr)})
}

// sleep waits out the backoff delay, returning false if the transport
// closed meanwhile.
func (t *Transport) sleep(attempt int) bool {
	timer := time.NewTimer(t.cfg.Backoff.Delay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.done:
		return false
	}
}

// emit delivers an event to the consumer, giving up only on shutdown.
// The supervisor is the sole consumer and drains promptly; blocking
// here keeps event order intact instead of dropping.
func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}
