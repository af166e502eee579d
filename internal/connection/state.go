// internal/connection/state.go
package connection

import "time"

// State is the connectivity state of one device session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
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

// Transition describes one state change.
type Transition struct {
	Device string
	From   State
	To     State
	At     time.Time
	Reason string
}

// Snapshot is the read-only view exposed to status reporting.
type Snapshot struct {
	Name      string
	Address   string
	State     State
	Since     time.Time
	Connected bool
}
