package model

import "fmt"

// The four failure classes every collaborator call resolves to. The
// request layer maps transport and HTTP-status failures onto these;
// callers branch with errors.As.

// NetworkError is a transient failure. The action may succeed if the
// user retries it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network error: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a permanent failure for the given input, carrying
// the violated precondition.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Reason) }

// PermissionError is a permanent failure: the current user may not
// perform the action. Not retryable.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string { return fmt.Sprintf("%s: permission denied", e.Op) }

// ConflictError means the action's target no longer exists, e.g.
// reacting to a message deleted in the meantime. The engine resolves it
// by reconciling local state to the target's absence.
type ConflictError struct {
	Op        string
	MessageID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: message %d is gone", e.Op, e.MessageID)
}
