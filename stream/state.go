package stream

import "time"

// Status is the lifecycle position of the stream connection.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionState is the observable connection status of a Manager.
type ConnectionState struct {
	Status    Status
	Connected bool

	// LastError is the most recent connection or fetch error, "" when the
	// last connect succeeded.
	LastError string

	// LastUpdated is when the most recent snapshot was applied.
	LastUpdated time.Time

	// Attempts counts reconnects since the last successful open.
	Attempts int

	// Terminal is set once automatic reconnects have stopped: retries were
	// exhausted, the server rejected the caller, or Disconnect was called.
	Terminal bool
}
