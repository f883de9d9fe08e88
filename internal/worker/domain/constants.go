package domain

// Job status constants
const (
	JobStatusQueued     = "QUEUED"
	JobStatusProcessing = "PROCESSING"
	JobStatusSucceeded  = "SUCCEEDED"
	JobStatusFailed     = "FAILED"
)

// Pipeline modes accepted at submission
const (
	ModeSingle     = "single"
	ModeSequential = "sequential"
)

// transitions lists the only legal state changes
var transitions = map[string][]string{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusSucceeded, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func IsTerminal(status string) bool {
	return status == JobStatusSucceeded || status == JobStatusFailed
}

// ValidMode reports whether mode names a known pipeline strategy; empty means default
func ValidMode(mode string) bool {
	return mode == "" || mode == ModeSingle || mode == ModeSequential
}
