package conn

// State is the lifecycle state of the live connection. Transitions only ever
// run Disconnected -> Connecting -> Connected -> Disconnected.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// legalNext reports whether moving from s to next follows the cycle.
func (s State) legalNext(next State) bool {
	switch s {
	case Disconnected:
		return next == Connecting
	case Connecting:
		return next == Connected || next == Disconnected
	case Connected:
		return next == Disconnected
	}
	return false
}
