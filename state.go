package courier

import (
	"time"

	"github.com/gojek/courier-iot/backoff"
)

// Status is the connection status of a device session.
type Status int

const (
	// Disconnected means no session is open.
	Disconnected Status = iota
	// Connecting means a connection attempt is in progress.
	Connecting
	// Connected means the broker accepted the session.
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is the complete mutable state of a Controller. Every step takes the
// current State and returns the next one, the Controller commits it once per call.
type State struct {
	Status      Status
	Token       Token
	Backoff     backoff.State
	LastAttempt time.Time
}
