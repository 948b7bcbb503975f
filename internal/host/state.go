package host

// State is the supervisor lifecycle state.
type State int32

const (
	// StateIdle means no generation is live, either before the first load
	// or after a failed one.
	StateIdle State = iota
	StateLoading
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
