package task

import "fmt"

// Status labels the lifecycle state of a task.
type Status string

const (
	// StatusPending indicates the task is awaiting dispatch.
	StatusPending Status = "pending"
	// StatusRunning indicates the task has been dispatched to a worker.
	StatusRunning Status = "running"
	// StatusCompleted indicates the task passed validation.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the task exhausted its retries.
	StatusFailed Status = "failed"
)

// allowedTransitions defines the permitted task status changes. The
// dispatcher moves pending work to running; the validation workflow moves
// running work onward; implementation review may send completed work back
// to pending for rework.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusRunning: {},
	},
	StatusRunning: {
		StatusCompleted: {},
		StatusPending:   {},
		StatusFailed:    {},
	},
	StatusCompleted: {
		StatusPending: {},
	},
	StatusFailed: {},
}

// IsValidTransition reports whether the lifecycle allows the requested change.
func IsValidTransition(from Status, to Status) bool {
	if from == "" || to == "" {
		return false
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// ValidateTransition returns an error when a status change is not allowed.
func ValidateTransition(from Status, to Status) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("invalid task status transition from %q to %q", from, to)
	}
	return nil
}
