package cache

// State describes the validity of one (entry, descriptor[, library]) datum.
type State uint8

const (
	// Invalid means the value is absent or stale and must be recomputed
	// before use. It is the zero value: every datum starts here.
	Invalid State = iota
	// InProcess means a computation is underway. Other workers must wait
	// or skip rather than compute the same datum again.
	InProcess
	// Valid means the value is present and usable.
	Valid
	// Error means a computation was attempted and failed. No value is held.
	Error
	// Flushed means a previously valid value was evicted to save memory.
	// Recomputing it yields the same result; nothing upstream changed.
	Flushed
)

var stateNames = [...]string{
	Invalid:   "INVALID",
	InProcess: "IN_PROCESS",
	Valid:     "VALID",
	Error:     "ERROR",
	Flushed:   "FLUSHED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// canBegin reports whether a computation may start from s.
func (s State) canBegin() bool {
	return s == Invalid || s == Flushed
}
