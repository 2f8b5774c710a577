package operation

import (
	"context"
	"time"
)

// Status is the coarse lifecycle status of an operation or sub-resource.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
)

// Conclusion qualifies a completed status.
type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionNeutral   Conclusion = "neutral"
)

// State is a status plus, once completed, its conclusion.
type State struct {
	Status     Status
	Conclusion Conclusion
}

// Completed returns the terminal state with conclusion c.
func Completed(c Conclusion) State {
	return State{Status: StatusCompleted, Conclusion: c}
}

// Terminal reports whether s is a Completed state.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted
}

// Known reports whether s carries an observed status.
func (s State) Known() bool {
	return s.Status != "" && s.Status != StatusUnknown
}

func (s State) String() string {
	if s.Status == "" {
		return string(StatusUnknown)
	}
	if s.Terminal() {
		return string(s.Status) + "(" + string(s.Conclusion) + ")"
	}
	return string(s.Status)
}

// Operation is a snapshot of a tracked operation. Snapshots are values; the
// owning Poller never mutates one after handing it out.
type Operation struct {
	ID                string
	State             State
	CreatedAt         time.Time
	LastPolledAt      time.Time
	PollInterval      time.Duration
	ConsecutiveErrors int
	Polls             int

	// Vanished is set when the remote resource disappeared after its state
	// had been observed at least once.
	Vanished bool
}

// Done reports whether polling has nothing left to observe.
func (o Operation) Done() bool {
	return o.State.Terminal() || o.Vanished
}

// Dispatch is the result of the call that started a remote operation.
type Dispatch struct {
	// ID is the remote operation id. Required.
	ID string

	// State is the state reported by the dispatch call, if any.
	State State

	// CreatedAt defaults to the poller clock's now.
	CreatedAt time.Time
}

// RawStatus is what a StatusSource reports for an operation.
type RawStatus struct {
	State State
}

// SubResource is a unit of work inside an operation (e.g. a job of a
// pipeline run) that owns a log.
type SubResource struct {
	ID    string
	Name  string
	State State
}

// StatusSource is the remote API the poller and streamer read from.
// Implementations typically route through client.Executor.
//
// Contract:
//   - Errors: a missing operation must be reported with an error matching
//     ErrOperationNotFound.
//   - Context: every method must honor cancellation.
//   - Concurrency: FetchLog may be called concurrently for different
//     sub-resources.
type StatusSource interface {
	FetchStatus(ctx context.Context, id string) (RawStatus, error)
	FetchSubResources(ctx context.Context, id string) ([]SubResource, error)
	// FetchLog returns the log bytes of a sub-resource starting at offset.
	FetchLog(ctx context.Context, id, subResourceID string, offset int64) ([]byte, error)
	Cancel(ctx context.Context, id string) error
}
