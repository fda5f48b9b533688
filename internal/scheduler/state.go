package scheduler

// State is a stage of the cycle state machine:
// Idle → Collecting → Assembling → Sending → Idle.
type State int32

const (
	StateIdle State = iota
	StateCollecting
	StateAssembling
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateAssembling:
		return "assembling"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}
