package health

import (
	"context"
	"fmt"
	"time"
)

// Status is a check outcome. Larger values are worse, so statuses can be
// combined with Worst.
type Status int

const (
	StatusHealthy Status = iota
	// StatusDegraded means calls still go out but are delayed or probing.
	StatusDegraded
	// StatusUnhealthy means calls are being refused or will fail.
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("health: unknown status %q", name)
}

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	return max(a, b)
}

// Result is what a Checker reports. The aggregator fills in Duration, and
// Timestamp when the checker left it zero.
type Result struct {
	Status  Status
	Message string

	// Details are rendered as JSON by DetailedHandler, keyed by endpoint
	// class for the built-in checkers.
	Details map[string]any

	Duration  time.Duration
	Timestamp time.Time

	// Error explains an unhealthy status.
	Error error
}

func newResult(status Status, message string, err error) Result {
	return Result{Status: status, Message: message, Error: err, Timestamp: time.Now()}
}

// Healthy returns a healthy result.
func Healthy(message string) Result { return newResult(StatusHealthy, message, nil) }

// Degraded returns a degraded result.
func Degraded(message string) Result { return newResult(StatusDegraded, message, nil) }

// Unhealthy returns an unhealthy result caused by err.
func Unhealthy(message string, err error) Result {
	return newResult(StatusUnhealthy, message, err)
}

// WithDetails returns r with details attached.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Serving reports whether the checked component still sends requests.
func (r Result) Serving() bool {
	return r.Status != StatusUnhealthy
}

// Checker inspects one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

func (f funcChecker) Name() string                     { return f.name }
func (f funcChecker) Check(ctx context.Context) Result { return f.fn(ctx) }

// CheckFunc returns a Checker named name that calls fn.
func CheckFunc(name string, fn func(context.Context) Result) Checker {
	return funcChecker{name: name, fn: fn}
}
