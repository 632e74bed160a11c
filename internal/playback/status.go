package playback

// Status is the supervisor's playback state.
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusPlaying
	StatusPaused
	StatusErrored
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusStarting:
		return "Starting"
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// IsActive reports whether a playback session is underway.
func (s Status) IsActive() bool {
	return s == StatusStarting || s == StatusPlaying || s == StatusPaused
}

// Stream is what the supervisor plays: a named URL. Directory metadata
// stays in the discovery layer.
type Stream struct {
	Name string
	URL  string
}
