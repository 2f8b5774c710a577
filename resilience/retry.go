package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

// BackoffStrategy shapes the delay between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier per attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the delay by InitialDelay per attempt.
	BackoffLinear
	// BackoffConstant waits InitialDelay every time.
	BackoffConstant
)

var backoffNames = [...]string{"exponential", "linear", "constant"}

func (s BackoffStrategy) String() string {
	if s < 0 || int(s) >= len(backoffNames) {
		return "unknown"
	}
	return backoffNames[s]
}

// ParseBackoffStrategy maps a strategy name to its value. Unknown names
// and "" select BackoffExponential and report false for unknown names.
func ParseBackoffStrategy(name string) (BackoffStrategy, bool) {
	if name == "" {
		return BackoffExponential, true
	}
	for i, n := range backoffNames {
		if n == name {
			return BackoffStrategy(i), true
		}
	}
	return BackoffExponential, false
}

// base is the un-jittered delay after the given 1-based attempt.
func (s BackoffStrategy) base(initial time.Duration, multiplier float64, attempt int) time.Duration {
	switch s {
	case BackoffConstant:
		return initial
	case BackoffLinear:
		return initial * time.Duration(attempt)
	default:
		d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
		if d >= math.MaxInt64 {
			return math.MaxInt64
		}
		return time.Duration(d)
	}
}

// RetryAfterHinter is implemented by errors that carry a server-supplied
// minimum delay before the next attempt, such as a Retry-After header.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// RetryConfig configures a Retry.
type RetryConfig struct {
	// MaxAttempts counts the first attempt.
	// Default: 3
	MaxAttempts int

	// InitialDelay precedes the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps computed delays. A larger Retry-After hint still wins.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier applies to BackoffExponential.
	// Default: 2.0
	Multiplier float64

	Strategy BackoffStrategy

	// Jitter adds up to 25% to each computed delay.
	Jitter bool

	// RetryIf reports whether err is worth another attempt.
	// Default: every non-nil error.
	RetryIf func(err error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Clock sleeps between attempts.
	// Default: the real clock.
	Clock clock.Clock
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = func(err error) bool { return err != nil }
	}
	c.Clock = clock.OrReal(c.Clock)
}

// Retry re-runs an operation with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a Retry with defaults applied to config.
func NewRetry(config RetryConfig) *Retry {
	config.applyDefaults()
	return &Retry{config: config}
}

// Execute calls op with the 1-based attempt number until it succeeds,
// fails with an error RetryIf rejects, or MaxAttempts is reached. The last
// error is returned unchanged. A cancelled wait returns the context error.
func (r *Retry) Execute(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx, attempt)
		if err == nil || !r.config.RetryIf(err) || attempt >= r.config.MaxAttempts {
			return err
		}

		delay := r.Delay(attempt, err)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		if werr := r.config.Clock.Sleep(ctx, delay); werr != nil {
			return werr
		}
	}
}

// Delay returns the wait after attempt failed with err. A RetryAfterHinter
// in err's chain raises it to at least the hint.
func (r *Retry) Delay(attempt int, err error) time.Duration {
	delay := r.backoff(attempt)
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		delay = max(delay, hinter.RetryAfterHint())
	}
	return delay
}

func (r *Retry) backoff(attempt int) time.Duration {
	delay := r.config.Strategy.base(r.config.InitialDelay, r.config.Multiplier, attempt)
	if delay <= 0 || delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// Config returns the configuration with defaults applied.
func (r *Retry) Config() RetryConfig {
	return r.config
}
