package operation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOperationNotFound is returned when the remote operation does not
	// exist and no state was ever observed for it.
	ErrOperationNotFound = errors.New("operation: not found")

	// ErrStopped is returned once Cancel has stopped a handle.
	ErrStopped = errors.New("operation: polling stopped")

	// ErrTimeout is matched by every OperationTimeoutError.
	ErrTimeout = errors.New("operation: timed out")

	// ErrInvalidDispatch is returned by Start for a dispatch without an id.
	ErrInvalidDispatch = errors.New("operation: dispatch has no operation id")

	// ErrInvalidTransition is returned when a reported state cannot follow
	// the current one.
	ErrInvalidTransition = errors.New("operation: invalid state transition")

	// ErrUnknownStatus is returned for a status the poller does not model.
	ErrUnknownStatus = errors.New("operation: unknown status")

	// ErrLogUnavailable marks a Chunk whose content could not be fetched.
	ErrLogUnavailable = errors.New("operation: log unavailable")
)

// PollError reports that polling gave up after too many consecutive
// failures.
type PollError struct {
	ID                string
	ConsecutiveErrors int
	LastState         State
	Err               error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("operation: polling %s failed %d times in a row (last state %s): %v",
		e.ID, e.ConsecutiveErrors, e.LastState, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// OperationTimeoutError reports that an operation did not complete within
// the wait timeout.
type OperationTimeoutError struct {
	ID        string
	Timeout   time.Duration
	LastState State
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("operation: %s did not complete within %s (last state %s)", e.ID, e.Timeout, e.LastState)
}

func (e *OperationTimeoutError) Unwrap() error {
	return ErrTimeout
}
