package scrape

import "fmt"

var statusOrder = []JobStatus{JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed}

var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusInProgress, JobStatusFailed},
	JobStatusInProgress: {JobStatusInProgress, JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// A job already in_progress may be restarted by a retry attempt.
// A pending job may fail directly when it could never be queued.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition when the move is not allowed.
func ValidateTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TransitionSources lists, in lifecycle order, the statuses a job may hold when it moves to to.
func TransitionSources(to JobStatus) []JobStatus {
	var from []JobStatus
	for _, status := range statusOrder {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}
