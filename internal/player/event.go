package player

import "encoding/json"

// EventKind discriminates decoded player events.
type EventKind int

const (
	// EventConnected fires after the control socket (re)connects.
	EventConnected EventKind = iota
	// EventPropertyChange carries an observed property update.
	EventPropertyChange
	// EventStartFile means the player accepted a stream and began
	// loading it.
	EventStartFile
	// EventPlaybackRestart means decoding actually started; this is the
	// playing confirmation.
	EventPlaybackRestart
	// EventEndFile means the current stream ended; Reason says why.
	EventEndFile
	// EventClientError is a non-success reply from the player.
	EventClientError
	// EventDisconnected means the control connection dropped and a
	// reconnect is being attempted.
	EventDisconnected
	// EventLost means the reconnect budget is exhausted.
	EventLost
	// EventProcessExited means the player process terminated.
	EventProcessExited
)

// Event is one decoded occurrence from the player. Owned by the
// supervisor after decode; subscribers get copies.
type Event struct {
	Kind   EventKind
	Name   string // property name for EventPropertyChange
	Data   any    // property value (bool, float64, string or nil)
	Reason string // end-file reason, e.g. "eof", "error"
	Err    error  // EventClientError / EventLost / EventProcessExited detail
}

// incoming is the superset of fields the player writes on its IPC
// socket: asynchronous events and command replies.
type incoming struct {
	Event  string          `json:"event"`
	ID     int             `json:"id"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data"`
	Reason string          `json:"reason"`
	Error  string          `json:"error"`
}

// parseEvent decodes one IPC line. The second result is false for
// lines that should be skipped: command acks, unobserved events, and
// malformed input.
func parseEvent(line []byte) (Event, bool) {
	var in incoming
	if err := json.Unmarshal(line, &in); err != nil {
		return Event{}, false
	}

	if in.Event == "" {
		// A command reply. Successful acks carry no information the
		// supervisor needs; failures do.
		if in.Error != "" && in.Error != "success" {
			return Event{Kind: EventClientError, Err: &CommandError{Status: in.Error}}, true
		}
		return Event{}, false
	}

	switch in.Event {
	case "property-change":
		ev := Event{Kind: EventPropertyChange, Name: in.Name}
		if len(in.Data) > 0 {
			var v any
			if err := json.Unmarshal(in.Data, &v); err == nil {
				ev.Data = v
			}
		}
		return ev, true
	case "start-file":
		return Event{Kind: EventStartFile}, true
	case "playback-restart":
		return Event{Kind: EventPlaybackRestart}, true
	case "end-file":
		return Event{Kind: EventEndFile, Reason: in.Reason}, true
	default:
		return Event{}, false
	}
}

// CommandError is a non-success status in a player command reply.
type CommandError struct {
	Status string
}

func (e *CommandError) Error() string {
	return "player rejected command: " + e.Status
}
