package invocation

// State is the lifecycle state of an invocation.
type State int

// Invocation states. READY is initial; SUCCEEDED and FAILED are terminal.
const (
	Ready State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
