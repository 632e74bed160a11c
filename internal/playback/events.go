package playback

// StatusChange is emitted on every state transition.
type StatusChange struct {
	Previous Status
	Current  Status

	// Reason carries the cause for StatusErrored transitions, empty
	// otherwise.
	Reason string
}

// TitleChange is emitted when the player reports a new stream title
// (ICY metadata). An empty title means the stream cleared it.
type TitleChange struct {
	Title string
}

// VolumeChange is emitted when the player's volume property changes.
type VolumeChange struct {
	Volume int
}

// ErrorEvent is emitted for player-side errors that do not change the
// playback state, such as a rejected command.
type ErrorEvent struct {
	Operation string // e.g. "play", "set volume"
	Err       error
}
