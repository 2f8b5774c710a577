package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/remoteops/resilience"
)

var (
	// ErrNoTransport is returned by NewExecutor without a Transport.
	ErrNoTransport = errors.New("client: transport is required")

	// ErrUnexpectedStatus wraps non-success HTTP statuses in ExecError.
	ErrUnexpectedStatus = errors.New("client: unexpected status")

	// ErrNilRequest is returned by Execute for a nil request.
	ErrNilRequest = errors.New("client: request is nil")
)

// ExecError is returned by Executor.Execute when a call fails after it was
// admitted by the circuit breaker.
type ExecError struct {
	Class      string
	Method     string
	URL        string
	StatusCode int
	Attempts   int

	// Retryable reports whether the last failure was transient. An exhausted
	// transient failure keeps Retryable set and matches
	// resilience.ErrTransient.
	Retryable bool

	// RetryAfter is the server's wait hint from the last response.
	RetryAfter time.Duration

	// Response is the last response, if one was received.
	Response *Response

	Err error
}

func (e *ExecError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("client: %s %s [%s] failed after %d attempt(s) (%s): %v",
		e.Method, e.URL, e.Class, e.Attempts, kind, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is matches resilience.ErrTransient for retryable failures.
func (e *ExecError) Is(target error) bool {
	return target == resilience.ErrTransient && e.Retryable
}

// RetryAfterHint lets resilience.Retry honor the server's Retry-After.
func (e *ExecError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

var _ resilience.RetryAfterHinter = (*ExecError)(nil)
