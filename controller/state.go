package controller

// State is the controller's position in the capture-to-injection cycle.
// At most one session is in a non-Idle state process-wide.
type State int32

const (
	Idle State = iota
	Connecting
	Recording
	Processing
	Injecting
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Injecting:
		return "injecting"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}
