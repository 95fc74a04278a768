// internal/conn/state.go
// Connection lifecycle states and bookkeeping.
package conn

// State is the lifecycle state of the managed transport.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the Manager's bookkeeping for its single transport.
// Only the Manager's loop mutates it; Snapshot hands out copies.
type Connection struct {
	URL         string
	State       State
	Retries     int
	ManualClose bool
	// Exhausted is set once the retry bound is hit. It separates a
	// terminal give-up from an ordinary closed state and clears on the
	// next explicit Connect.
	Exhausted bool
}
