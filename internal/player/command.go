package player

import "encoding/json"

// Property observer ids registered right after connecting. mpv echoes
// them back on every property-change event.
const (
	ObserverPause      = 1
	ObserverVolume     = 2
	ObserverMediaTitle = 3
)

// Command is one request on the player's IPC protocol, serialized as a
// single {"command":[...]} line. Immutable once constructed.
type Command struct {
	Args []any `json:"command"`
}

// Encode returns the newline-terminated wire form.
func (c Command) Encode() ([]byte, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// LoadURL starts playback of the given stream URL, replacing whatever
// is loaded.
func LoadURL(url string) Command {
	return Command{Args: []any{"loadfile", url, "replace"}}
}

// SetPause pauses or resumes playback.
func SetPause(paused bool) Command {
	return Command{Args: []any{"set_property", "pause", paused}}
}

// CyclePause toggles the pause property.
func CyclePause() Command {
	return Command{Args: []any{"cycle", "pause"}}
}

// Stop stops playback and unloads the stream.
func Stop() Command {
	return Command{Args: []any{"stop"}}
}

// SetVolume sets the output volume, 0-100.
func SetVolume(percent int) Command {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Command{Args: []any{"set_property", "volume", float64(percent)}}
}

// ObserveProperty subscribes to change events for a property.
func ObserveProperty(id int, name string) Command {
	return Command{Args: []any{"observe_property", id, name}}
}
