//go:build linux

package mpris

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/xinia/radiowidget/internal/playback"
)

// Adapter exposes the playback supervisor to desktop shells over
// MPRIS D-Bus.
type Adapter struct {
	supervisor *playback.Supervisor
	server     *server.Server
	done       chan struct{}
}

// New creates and starts a new MPRIS adapter.
func New(sup *playback.Supervisor) (*Adapter, error) {
	a := &Adapter{
		supervisor: sup,
		done:       make(chan struct{}),
	}

	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{supervisor: sup}

	a.server = server.NewServer("radiowidget", rootAdapter, playerAdapter)

	// Start the server in background
	go func() {
		_ = a.server.Listen()
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	close(a.done)
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil // Track list interface not implemented
}

func (r *rootAdapter) Identity() (string, error) {
	return "Radiowidget", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"http", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/aac", "application/ogg"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	supervisor *playback.Supervisor
}

func (p *playerAdapter) Next() error {
	return p.supervisor.Next(context.Background())
}

func (p *playerAdapter) Previous() error {
	return nil // Not supported - live streams have no history position
}

func (p *playerAdapter) Pause() error {
	return p.supervisor.Pause()
}

func (p *playerAdapter) PlayPause() error {
	return p.supervisor.Toggle()
}

func (p *playerAdapter) Stop() error {
	return p.supervisor.Stop()
}

func (p *playerAdapter) Play() error {
	if p.supervisor.Status() == playback.StatusPaused {
		return p.supervisor.Resume()
	}
	return nil // Nothing sensible to play without a station pick
}

func (p *playerAdapter) Seek(_ types.Microseconds) error {
	return nil // Live streams are not seekable
}

func (p *playerAdapter) SetPosition(_ string, _ types.Microseconds) error {
	return nil // Live streams are not seekable
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.supervisor.Status() {
	case playback.StatusPlaying, playback.StatusStarting:
		return types.PlaybackStatusPlaying, nil
	case playback.StatusPaused:
		return types.PlaybackStatusPaused, nil
	case playback.StatusStopped, playback.StatusErrored:
		return types.PlaybackStatusStopped, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	stream := p.supervisor.Current()
	if stream == nil {
		return types.Metadata{}, nil
	}

	// The stream title (ICY metadata) is the track; the station is the
	// artist slot, which is how shells render radio players.
	title := p.supervisor.Title()
	if title == "" {
		title = stream.Name
	}

	return types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(stream.URL)),
		Title:   title,
		Artist:  []string{stream.Name},
	}, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return float64(p.supervisor.Volume()) / 100, nil
}

func (p *playerAdapter) SetVolume(v float64) error {
	return p.supervisor.SetVolume(int(v * 100))
}

func (p *playerAdapter) Position() (int64, error) {
	return 0, nil // Live streams have no position
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.supervisor.HasNext(), nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return false, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.supervisor.Status().IsActive(), nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return false, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

func formatTrackID(url string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
