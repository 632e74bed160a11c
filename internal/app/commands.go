package app

// Command is a user intent delivered to the controller. The GUI shell
// (panel icon, popup) only ever talks to the core by sending these.
type Command interface{ isCommand() }

// SearchCmd starts a station search. An empty query clears results.
type SearchCmd struct {
	Query string
}

// PlayCmd plays a station by its directory UUID. The controller finds
// it in the current results or recents, or resolves it remotely.
type PlayCmd struct {
	UUID string
}

// TogglePauseCmd flips between playing and paused.
type TogglePauseCmd struct{}

// StopCmd stops playback.
type StopCmd struct{}

// SetVolumeCmd sets the player volume (0-100).
type SetVolumeCmd struct {
	Volume int
}

// NextCmd switches to the next station after the current one in the
// search results.
type NextCmd struct{}

// ToggleFavoriteCmd adds a station to the favorites, or removes it if
// it is already there. An empty UUID targets the playing station.
type ToggleFavoriteCmd struct {
	UUID string
}

// ShutdownCmd tears the core down; the controller loop exits after
// handling it.
type ShutdownCmd struct{}

func (SearchCmd) isCommand()         {}
func (PlayCmd) isCommand()           {}
func (TogglePauseCmd) isCommand()    {}
func (StopCmd) isCommand()           {}
func (SetVolumeCmd) isCommand()      {}
func (NextCmd) isCommand()           {}
func (ToggleFavoriteCmd) isCommand() {}
func (ShutdownCmd) isCommand()       {}
