// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Discovery operations
	OpSearchStations  Op = "search stations"
	OpResolveStation  Op = "look up station"
	OpBootstrapMirror Op = "discover directory mirrors"

	// Playback operations
	OpSpawnPlayer    Op = "start player process"
	OpStartPlayback  Op = "start playback"
	OpPausePlayback  Op = "pause playback"
	OpResumePlayback Op = "resume playback"
	OpStopPlayback   Op = "stop playback"
	OpSetVolume      Op = "set volume"
	OpNextStation    Op = "switch to next station"

	// State operations
	OpLoadRecents    Op = "load recent stations"
	OpSaveRecent     Op = "remember station"
	OpToggleFavorite Op = "update favorites"
	OpSaveSettings   Op = "save applet state"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
