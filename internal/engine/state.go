package engine

// State is the phase of the current processing cycle.
type State int32

const (
	StateIdle State = iota
	StateDraining
	StateGrouping
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateGrouping:
		return "grouping"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}
