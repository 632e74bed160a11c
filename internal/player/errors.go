package player

import "errors"

var (
	// ErrSocketUnavailable is returned when the control socket path does
	// not exist or refuses the connection.
	ErrSocketUnavailable = errors.New("control socket unavailable")

	// ErrTransportClosed is returned by Send when the connection has
	// dropped and an immediate reconnect attempt also failed.
	ErrTransportClosed = errors.New("control connection closed")

	// ErrTransportLost means the reconnect budget is exhausted; the
	// transport stays down until Rearm is called.
	ErrTransportLost = errors.New("control connection lost")

	// ErrSpawnFailed is returned when the player executable is missing,
	// exits immediately, or its socket never becomes connectable.
	ErrSpawnFailed = errors.New("player process failed to start")
)
