package playback

import "errors"

// ErrCommandRejected is returned when a playback command is issued
// without an active session to apply it to.
var ErrCommandRejected = errors.New("command rejected")
