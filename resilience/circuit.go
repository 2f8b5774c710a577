package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen fails calls fast until ResetTimeout has passed.
	StateOpen
	// StateHalfOpen admits a single trial call.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// Name is the endpoint class, e.g. "sts" or "repo-api".
	Name string

	// FailureThreshold consecutive failures open the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold consecutive successes while closed clear a partial
	// failure streak.
	// Default: 3
	SuccessThreshold int

	// ResetTimeout is how long the circuit stays open before a trial.
	// Default: 30s
	ResetTimeout time.Duration

	// OnStateChange runs under the breaker lock on every transition. It must
	// not call back into the breaker.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies Execute results.
	// Default: every non-nil error.
	IsFailure func(err error) bool

	// Clock measures ResetTimeout.
	// Default: the real clock.
	Clock clock.Clock
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	c.Clock = clock.OrReal(c.Clock)
	return c
}

// CircuitBreakerMetrics is a snapshot of one breaker.
type CircuitBreakerMetrics struct {
	Name           string
	State          State
	Failures       int // current streak
	Successes      int // successes since the streak's last failure
	OpenedAt       time.Time
	LastFailure    time.Time
	TotalSuccesses int64
	TotalFailures  int64
	Rejected       int64
}

// CircuitBreaker tracks the health of one endpoint class.
//
// Callers split a call in two: Check before dispatch, then exactly one of
// RecordSuccess, RecordFailure or Abandon once the outcome is known.
// Abandon is for calls that never reached the backend.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Half-open admits one trial at a time; others are rejected.
//   - Open turns half-open lazily, on the first look after ResetTimeout.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu    sync.Mutex
	m     CircuitBreakerMetrics
	trial bool // a half-open trial is in flight
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config = config.withDefaults()
	return &CircuitBreaker{config: config, m: CircuitBreakerMetrics{Name: config.Name}}
}

// Name returns the endpoint class.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Check admits or rejects a call. Rejections are *CircuitOpenError; while
// open, RetryAfter says when a trial will be admitted. In the half-open
// state a nil result makes the caller the trial.
func (cb *CircuitBreaker) Check() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateOpen:
		cb.m.Rejected++
		return &CircuitOpenError{
			Name:       cb.config.Name,
			State:      StateOpen,
			RetryAfter: cb.m.OpenedAt.Add(cb.config.ResetTimeout).Sub(cb.config.Clock.Now()),
		}
	case StateHalfOpen:
		if cb.trial {
			cb.m.Rejected++
			return &CircuitOpenError{Name: cb.config.Name, State: StateHalfOpen}
		}
		cb.trial = true
	}
	return nil
}

// RecordSuccess reports a call that reached the backend and succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.m.TotalSuccesses++
	switch cb.stateLocked() {
	case StateHalfOpen:
		cb.trial = false
		cb.m.Failures, cb.m.Successes = 0, 0
		cb.transitionLocked(StateClosed)
	case StateClosed:
		if cb.m.Failures > 0 {
			cb.m.Successes++
			if cb.m.Successes >= cb.config.SuccessThreshold {
				cb.m.Failures, cb.m.Successes = 0, 0
			}
		}
	}
}

// RecordFailure reports a call that reached the backend and failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Clock.Now()
	cb.m.TotalFailures++
	cb.m.LastFailure = now

	switch cb.stateLocked() {
	case StateHalfOpen:
		// The failed trial reopens with the streak saturated, so the next
		// trial is judged against the same threshold.
		cb.trial = false
		cb.m.Failures, cb.m.Successes = cb.config.FailureThreshold, 0
		cb.open(now)
	case StateClosed:
		cb.m.Failures++
		cb.m.Successes = 0
		if cb.m.Failures >= cb.config.FailureThreshold {
			cb.open(now)
		}
	}
	// Open: a late result from a call admitted before opening is ignored.
}

// Abandon frees the half-open trial slot without changing state.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.m.State == StateHalfOpen {
		cb.trial = false
	}
}

// Execute runs op behind Check and records its outcome with IsFailure.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.Check(); err != nil {
		return err
	}
	err := op(ctx)
	if cb.config.IsFailure(err) {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// Reset closes the circuit and clears the streak. Totals are kept.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trial = false
	cb.m.Failures, cb.m.Successes = 0, 0
	cb.transitionLocked(StateClosed)
}

// Metrics returns a snapshot.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.stateLocked()
	return cb.m
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.m.OpenedAt = now
	cb.transitionLocked(StateOpen)
}

// stateLocked moves an expired open circuit to half-open.
func (cb *CircuitBreaker) stateLocked() State {
	if cb.m.State == StateOpen && !cb.config.Clock.Now().Before(cb.m.OpenedAt.Add(cb.config.ResetTimeout)) {
		cb.trial = false
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.m.State
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.m.State
	if from == to {
		return
	}
	cb.m.State = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
