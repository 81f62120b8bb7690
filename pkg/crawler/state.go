package crawler

// State is a step of the per-range exploration state machine.
type State int

const (
	// StateProbing issues the cardinality estimate for a range.
	StateProbing State = iota
	// StateDeciding compares the estimate with the ceiling.
	StateDeciding
	// StateSplitting bisects a range over the ceiling.
	StateSplitting
	// StateCollecting paginates a range and commits what was staged.
	StateCollecting
	// StateSkipping drops a range with no matches.
	StateSkipping
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateDeciding:
		return "deciding"
	case StateSplitting:
		return "splitting"
	case StateCollecting:
		return "collecting"
	case StateSkipping:
		return "skipping"
	default:
		return "unknown"
	}
}

// StateRecorder tracks state transitions for testing.
type StateRecorder struct {
	path []string
}

func NewStateRecorder() *StateRecorder {
	return &StateRecorder{path: make([]string, 0)}
}

func (r *StateRecorder) Record(state State) {
	r.path = append(r.path, state.String())
}

func (r *StateRecorder) Path() []string {
	return r.path
}
