package devicelink

// ConnectionState describes the link's lifecycle position. Transitions
// always pass through StateConnecting on the way up and land on
// StateDisconnected or StateError on the way down.
type ConnectionState int32

const (
	// StateDisconnected is the idle state, before connect and after any
	// teardown.
	StateDisconnected ConnectionState = iota

	// StateConnecting covers enumeration, selection, and port open.
	StateConnecting

	// StateConnected means the port is open and the read loop is running.
	StateConnected

	// StateError means the last connection attempt failed. Functionally
	// equivalent to disconnected but distinguishable by observers.
	StateError
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
