package lifecycle

import "fmt"

// The orchestrator returns typed errors so callers can map each failure
// class to a user-facing outcome. Participant-visible detail belongs to
// NotFoundError and ConflictError; RuntimeError and StorageError are
// reported generically and logged in full for operators.

// NotFoundError reports an absent challenge or instance.
type NotFoundError struct {
	Kind string // "challenge" or "instance"
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("lifecycle: %s %s not found", e.Kind, e.Ref)
}

// ConflictError reports that the exclusivity rule blocked a creation:
// the owner already holds an instance for another challenge. No implicit
// termination is performed.
type ConflictError struct {
	BlockingChallenge string
	InstanceID        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lifecycle: another instance is already running for challenge %q", e.BlockingChallenge)
}

// RuntimeError reports a failed or timed-out runtime driver call.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("lifecycle: runtime %s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// StorageError reports a persistence failure, possibly after a driver call
// already succeeded.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("lifecycle: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
