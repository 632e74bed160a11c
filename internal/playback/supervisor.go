// Package playback is the state machine between user intent and the
// external player. It owns the player process through the backend,
// turns intents into control commands, and folds the asynchronous
// event stream back into a single playback status.
package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xinia/radiowidget/internal/player"
)

// DefaultShutdownGrace bounds how long a stopping player process gets
// before it is killed.
const DefaultShutdownGrace = 2 * time.Second

// BackendFactory builds a fresh backend each time the supervisor needs
// to (re)spawn the player.
type BackendFactory func() player.Backend

// Config tunes the supervisor.
type Config struct {
	DefaultVolume int // applied after each spawn, 0 leaves the player default
	ShutdownGrace time.Duration
}

// Supervisor drives one player backend and exposes the playback state
// machine: Stopped, Starting, Playing, Paused, Errored. Playing is
// entered only when the player confirms the stream started, never from
// a command acknowledgement alone.
type Supervisor struct {
	newBackend BackendFactory
	cfg        Config

	startMu sync.Mutex // serializes spawns

	mu           sync.Mutex
	backend      player.Backend
	status       Status
	errReason    string
	current      *Stream
	next         *Stream
	title        string
	volume       int
	reconnecting bool
	closed       bool

	subs   []*Subscription
	subsMu sync.RWMutex

	done chan struct{}
}

// New creates a stopped supervisor. No process is spawned until the
// first Play or EnsureRunning.
func New(factory BackendFactory, cfg Config) *Supervisor {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	return &Supervisor{
		newBackend: factory,
		cfg:        cfg,
		volume:     cfg.DefaultVolume,
		done:       make(chan struct{}),
	}
}

// EnsureRunning spawns the player if no live process exists and starts
// consuming its events.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: supervisor shut down", ErrCommandRejected)
	}
	if s.backend != nil && s.backend.Alive() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	b := s.newBackend()
	if err := b.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = b.Shutdown(s.cfg.ShutdownGrace)
		return fmt.Errorf("%w: supervisor shut down", ErrCommandRejected)
	}
	s.backend = b
	s.reconnecting = false
	s.mu.Unlock()

	go s.watch(b)

	if s.cfg.DefaultVolume > 0 {
		_ = b.Send(player.SetVolume(s.cfg.DefaultVolume))
	}
	return nil
}

// Play ensures the player is running and loads the stream. The status
// moves to Starting immediately; Playing follows once the player
// reports the stream up.
func (s *Supervisor) Play(ctx context.Context, st Stream) error {
	if st.URL == "" {
		return fmt.Errorf("%w: stream has no url", ErrCommandRejected)
	}
	if err := s.EnsureRunning(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	b := s.backend
	if b == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no player session", ErrCommandRejected)
	}
	s.current = &st
	s.setTitleLocked("")
	s.transitionLocked(StatusStarting, "")
	s.mu.Unlock()

	if err := b.Send(player.LoadURL(st.URL)); err != nil {
		s.fail(fmt.Sprintf("load %s: %v", st.Name, err))
		return fmt.Errorf("load stream: %w", err)
	}
	if err := b.Send(player.SetPause(false)); err != nil {
		s.fail(fmt.Sprintf("start %s: %v", st.Name, err))
		return fmt.Errorf("start stream: %w", err)
	}
	return nil
}

// Pause asks the player to pause the active session.
func (s *Supervisor) Pause() error {
	return s.command("pause", player.SetPause(true))
}

// Resume asks the player to resume a paused session.
func (s *Supervisor) Resume() error {
	return s.command("resume", player.SetPause(false))
}

// Toggle flips between playing and paused.
func (s *Supervisor) Toggle() error {
	return s.command("toggle pause", player.CyclePause())
}

// SetVolume sets the player volume, clamped to 0..100.
func (s *Supervisor) SetVolume(v int) error {
	return s.command("set volume", player.SetVolume(v))
}

// command issues one thin control command against the active session.
func (s *Supervisor) command(op string, cmd player.Command) error {
	s.mu.Lock()
	b := s.backend
	active := s.status.IsActive()
	s.mu.Unlock()

	if b == nil || !active || !b.Alive() {
		return fmt.Errorf("%w: no active playback session", ErrCommandRejected)
	}
	if err := b.Send(cmd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop ends the session. Idempotent: stopping a stopped supervisor is
// a no-op, and Stop from any state lands in Stopped.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	b := s.backend
	s.current = nil
	s.setTitleLocked("")
	s.transitionLocked(StatusStopped, "")
	s.mu.Unlock()

	if b != nil && b.Alive() {
		if err := b.Send(player.Stop()); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}
	return nil
}

// QueueNext registers the stream Next should switch to. The
// application layer picks it (next search result, next recent).
func (s *Supervisor) QueueNext(st Stream) {
	s.mu.Lock()
	s.next = &st
	s.mu.Unlock()
}

// HasNext reports whether a next stream is queued.
func (s *Supervisor) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next != nil
}

// Next plays the queued next stream.
func (s *Supervisor) Next(ctx context.Context) error {
	s.mu.Lock()
	nxt := s.next
	s.next = nil
	s.mu.Unlock()

	if nxt == nil {
		return fmt.Errorf("%w: nothing queued to play next", ErrCommandRejected)
	}
	return s.Play(ctx, *nxt)
}

// Shutdown stops playback, tears the player down and closes all
// subscriptions. The supervisor always ends Stopped.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	b := s.backend
	s.backend = nil
	s.current = nil
	s.setTitleLocked("")
	s.transitionLocked(StatusStopped, "")
	s.mu.Unlock()

	var err error
	if b != nil {
		_ = b.Send(player.Stop())
		err = b.Shutdown(s.cfg.ShutdownGrace)
	}
	close(s.done)

	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsMu.Unlock()
	return err
}

// Status returns the current playback status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Current returns the stream being played, or nil.
func (s *Supervisor) Current() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	st := *s.current
	return &st
}

// Title returns the last stream title reported by the player.
func (s *Supervisor) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Volume returns the last known player volume.
func (s *Supervisor) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// LastError returns the reason behind the current Errored status.
func (s *Supervisor) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errReason
}

// Subscribe creates a new event subscription.
func (s *Supervisor) Subscribe() *Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	sub := newSubscription()
	s.subs = append(s.subs, sub)
	return sub
}

// watch consumes one backend's events until the process exits or the
// supervisor shuts down.
func (s *Supervisor) watch(b player.Backend) {
	for {
		select {
		case ev := <-b.Events():
			s.handleEvent(b, ev)
			if ev.Kind == player.EventProcessExited {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Supervisor) handleEvent(b player.Backend, ev player.Event) {
	switch ev.Kind {
	case player.EventConnected:
		s.mu.Lock()
		reconnected := s.reconnecting
		s.reconnecting = false
		s.mu.Unlock()
		if reconnected {
			// Property observers are per-connection state on the player
			// side; a fresh connection starts without them.
			s.reobserve(b)
		}

	case player.EventDisconnected:
		s.mu.Lock()
		s.reconnecting = true
		s.mu.Unlock()

	case player.EventPropertyChange:
		s.handleProperty(ev)

	case player.EventStartFile, player.EventPlaybackRestart:
		s.mu.Lock()
		if s.status == StatusStarting {
			s.transitionLocked(StatusPlaying, "")
		}
		s.mu.Unlock()

	case player.EventEndFile:
		s.mu.Lock()
		switch {
		case ev.Reason == "error":
			s.transitionLocked(StatusErrored, "stream ended with error")
		case s.status.IsActive():
			// Stream ran out on its own; a stop we issued already moved
			// the status, so there is nothing to do then.
			s.current = nil
			s.setTitleLocked("")
			s.transitionLocked(StatusStopped, "")
		}
		s.mu.Unlock()

	case player.EventClientError:
		s.publish(func(sub *Subscription) {
			sub.sendError(ErrorEvent{Operation: "player command", Err: ev.Err})
		})

	case player.EventLost:
		s.mu.Lock()
		s.transitionLocked(StatusErrored, "control connection lost")
		s.mu.Unlock()
		s.publish(func(sub *Subscription) {
			sub.sendError(ErrorEvent{Operation: "control channel", Err: ev.Err})
		})

	case player.EventProcessExited:
		s.mu.Lock()
		if s.backend == b {
			s.backend = nil
		}
		if !s.closed {
			reason := ev.Reason
			if reason == "" {
				reason = "player process exited"
			}
			s.transitionLocked(StatusErrored, reason)
		}
		s.mu.Unlock()
		// The process is already gone; this closes the control channel
		// so the backend's goroutines exit with it.
		_ = b.Shutdown(0)
	}
}

func (s *Supervisor) handleProperty(ev player.Event) {
	switch ev.Name {
	case "pause":
		paused, ok := ev.Data.(bool)
		if !ok {
			return
		}
		s.mu.Lock()
		switch {
		case paused && s.status == StatusPlaying:
			s.transitionLocked(StatusPaused, "")
		case !paused && s.status == StatusPaused:
			s.transitionLocked(StatusPlaying, "")
		}
		s.mu.Unlock()

	case "volume":
		v, ok := ev.Data.(float64)
		if !ok {
			return
		}
		vol := int(math.Round(v))
		s.mu.Lock()
		changed := vol != s.volume
		s.volume = vol
		s.mu.Unlock()
		if changed {
			s.publish(func(sub *Subscription) {
				sub.sendVolume(VolumeChange{Volume: vol})
			})
		}

	case "media-title":
		title, _ := ev.Data.(string) // nil data clears the title
		s.mu.Lock()
		s.setTitleLocked(title)
		s.mu.Unlock()
	}
}

// reobserve registers the property observers again after a transport
// reconnect.
func (s *Supervisor) reobserve(b player.Backend) {
	for _, cmd := range []player.Command{
		player.ObserveProperty(player.ObserverPause, "pause"),
		player.ObserveProperty(player.ObserverVolume, "volume"),
		player.ObserveProperty(player.ObserverMediaTitle, "media-title"),
	} {
		if err := b.Send(cmd); err != nil {
			return
		}
	}
}

// transitionLocked moves the state machine and notifies subscribers.
// Caller holds s.mu.
func (s *Supervisor) transitionLocked(to Status, reason string) {
	if s.status == to && s.errReason == reason {
		return
	}
	prev := s.status
	s.status = to
	s.errReason = reason
	s.publish(func(sub *Subscription) {
		sub.sendStatus(StatusChange{Previous: prev, Current: to, Reason: reason})
	})
}

// setTitleLocked updates the stream title and notifies subscribers.
// Caller holds s.mu.
func (s *Supervisor) setTitleLocked(title string) {
	if s.title == title {
		return
	}
	s.title = title
	s.publish(func(sub *Subscription) {
		sub.sendTitle(TitleChange{Title: title})
	})
}

// fail records a command failure as an Errored transition.
func (s *Supervisor) fail(reason string) {
	s.mu.Lock()
	s.transitionLocked(StatusErrored, reason)
	s.mu.Unlock()
}

func (s *Supervisor) publish(fn func(*Subscription)) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, sub := range s.subs {
		fn(sub)
	}
}
