package player

import (
	"context"
	"sync"
	"time"
)

// MockBackend is an in-memory Backend for supervisor tests. Commands
// are recorded; events are injected with Emit.
type MockBackend struct {
	mu        sync.Mutex
	started   bool
	alive     bool
	shutdowns int
	sent      []Command
	StartErr  error
	SendErr   error

	events chan Event
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates a mock with a buffered event stream.
func NewMockBackend() *MockBackend {
	return &MockBackend{events: make(chan Event, 64)}
}

func (m *MockBackend) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.started = true
	m.alive = true
	return nil
}

func (m *MockBackend) Send(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, cmd)
	return nil
}

func (m *MockBackend) Events() <-chan Event {
	return m.events
}

func (m *MockBackend) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *MockBackend) Shutdown(time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
	m.shutdowns++
	return nil
}

// Emit injects an event as if the player had produced it.
func (m *MockBackend) Emit(ev Event) {
	m.events <- ev
}

// Kill simulates an unexpected process death.
func (m *MockBackend) Kill(reason string) {
	m.mu.Lock()
	m.alive = false
	m.mu.Unlock()
	m.events <- Event{Kind: EventProcessExited, Reason: reason}
}

// Sent returns a copy of all commands received so far.
func (m *MockBackend) Sent() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.sent))
	copy(out, m.sent)
	return out
}

// Shutdowns reports how many times Shutdown has been called.
func (m *MockBackend) Shutdowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdowns
}

// Started reports whether Start has been called.
func (m *MockBackend) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}
