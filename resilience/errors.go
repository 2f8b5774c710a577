package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTransient is the category of failures worth retrying: network
	// errors, 5xx responses, rate limits and timeouts. Typed errors opt in
	// through an Is method.
	ErrTransient = errors.New("resilience: transient failure")
)

// CircuitOpenError is returned by Check when a call is rejected without any
// network I/O. It matches ErrCircuitOpen with errors.Is.
type CircuitOpenError struct {
	// Name is the endpoint class the breaker guards.
	Name string

	// State is the breaker state that caused the rejection (open, or
	// half-open with a trial already in flight).
	State State

	// RetryAfter is the remaining time until the breaker admits a trial.
	// Zero when a half-open trial is in flight.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("resilience: circuit breaker %q is %s (retry in %s)", e.Name, e.State, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("resilience: circuit breaker %q is %s", e.Name, e.State)
}

// Unwrap returns ErrCircuitOpen.
func (e *CircuitOpenError) Unwrap() error {
	return ErrCircuitOpen
}

// RetryAfterHint exposes RetryAfter to callers that schedule their own retries.
func (e *CircuitOpenError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}
