package core

// State is the lifecycle state of an agent.
//
//	READY -> RUNNING -> {WAITING -> RUNNING} -> COMPLETED | FAILED
//
// STOPPED is reachable from any state through an explicit stop request.
type State int

const (
	StateReady State = iota
	StateRunning
	StateWaiting
	StateCompleted
	StateFailed
	StateStopped
)

// String returns the upper-case name of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further processing happens in this state for
// the current task.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateStopped
}
