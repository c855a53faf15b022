package transport

// State is the lifecycle position of an actor.
type State int32

const (
	StateUninitialized State = iota
	StateListening
	StateConnecting
	StateHandshaking
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
