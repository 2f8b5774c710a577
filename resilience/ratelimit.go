package resilience

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/remoteops/clock"
)

// RateBudget is the request allowance for one endpoint class.
//
// Remaining never exceeds Limit. When SecondaryBackoffUntil is set and in the
// future it dominates every other field. A zero Limit means no budget has been
// observed yet and the class is not throttled.
type RateBudget struct {
	Limit                    uint32
	Remaining                uint32
	ResetAt                  time.Time
	SecondaryBackoffUntil    *time.Time
	ConsecutiveSecondaryHits uint32
}

// Known reports whether a server-reported budget has been observed.
func (b RateBudget) Known() bool {
	return b.Limit > 0
}

// Observation is the rate-limit metadata extracted from one response.
type Observation struct {
	// HasBudget is true when Limit, Remaining and ResetAt were reported.
	HasBudget bool
	Limit     uint32
	Remaining uint32
	ResetAt   time.Time

	// Secondary marks a secondary ("abuse") rate-limit signal.
	Secondary bool

	// RetryAfter is a server-supplied wait hint, if any.
	RetryAfter time.Duration

	// Success is true for responses that completed the call.
	Success bool
}

// WaitReason explains why Acquire suspended.
type WaitReason string

// Wait reasons reported on a Permit.
const (
	WaitNone      WaitReason = ""
	WaitSecondary WaitReason = "secondary"
	WaitExhausted WaitReason = "exhausted"
	WaitLowWater  WaitReason = "low_water"
	WaitPacing    WaitReason = "pacing"
)

// Permit is granted by Acquire.
type Permit struct {
	Class  string
	Waited time.Duration
	Reason WaitReason
}

// AdaptiveRateLimiterConfig configures the adaptive rate limiter.
type AdaptiveRateLimiterConfig struct {
	// LowWaterRatio is the fraction of Limit below which calls are throttled.
	// Default: 0.1
	LowWaterRatio float64

	// MinInterval is the base throttle delay below the low-water mark.
	// Default: 100ms
	MinInterval time.Duration

	// BackoffFactor multiplies MinInterval below the low-water mark.
	// Default: 2.0
	BackoffFactor float64

	// SecondaryBase is the base backoff after a secondary rate-limit signal.
	// Default: 60s
	SecondaryBase time.Duration

	// MaxSecondaryExponent caps the doubling of SecondaryBase.
	// Default: 5
	MaxSecondaryExponent uint32

	// ExhaustedWait is used as the reset horizon when the server reports an
	// exhausted budget without a reset time.
	// Default: 60s
	ExhaustedWait time.Duration

	// MaxRate, when positive, paces each class to at most MaxRate calls per
	// second regardless of the server budget.
	MaxRate float64

	// Burst is the pacing burst size used with MaxRate.
	// Default: 1
	Burst int

	// Clock supplies time. Default: wall clock.
	Clock clock.Clock
}

func (c AdaptiveRateLimiterConfig) withDefaults() AdaptiveRateLimiterConfig {
	if c.LowWaterRatio <= 0 || c.LowWaterRatio >= 1 {
		c.LowWaterRatio = 0.1
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 100 * time.Millisecond
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.SecondaryBase <= 0 {
		c.SecondaryBase = 60 * time.Second
	}
	if c.MaxSecondaryExponent == 0 {
		c.MaxSecondaryExponent = 5
	}
	if c.ExhaustedWait <= 0 {
		c.ExhaustedWait = 60 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	c.Clock = clock.OrReal(c.Clock)
	return c
}

// AdaptiveRateLimiter gates outgoing calls per endpoint class using budgets
// reported by the server. It never fails except when the caller's context
// is done.
type AdaptiveRateLimiter struct {
	config AdaptiveRateLimiterConfig

	mu      sync.Mutex
	budgets map[string]*RateBudget
	pacers  map[string]*rate.Limiter
}

// NewAdaptiveRateLimiter creates a new adaptive rate limiter.
func NewAdaptiveRateLimiter(config AdaptiveRateLimiterConfig) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		config:  config.withDefaults(),
		budgets: make(map[string]*RateBudget),
		pacers:  make(map[string]*rate.Limiter),
	}
}

// Acquire blocks until a call to class may proceed, or ctx is done.
func (l *AdaptiveRateLimiter) Acquire(ctx context.Context, class string) (Permit, error) {
	permit := Permit{Class: class}
	clk := l.config.Clock

	for {
		if err := ctx.Err(); err != nil {
			return permit, err
		}

		l.mu.Lock()
		delay, reason := l.delayLocked(class, clk.Now())
		l.mu.Unlock()

		if delay <= 0 {
			break
		}
		if permit.Reason == WaitNone || reason == WaitSecondary {
			permit.Reason = reason
		}
		permit.Waited += delay
		if err := clk.Sleep(ctx, delay); err != nil {
			return permit, err
		}
		if reason == WaitLowWater {
			// The throttle delay is already paid; do not re-evaluate into
			// another low-water sleep.
			break
		}
	}

	if l.config.MaxRate > 0 {
		waited, err := l.pace(ctx, class)
		permit.Waited += waited
		if waited > 0 && permit.Reason == WaitNone {
			permit.Reason = WaitPacing
		}
		if err != nil {
			return permit, err
		}
	}

	return permit, nil
}

// delayLocked decides how long a caller must wait. A zero delay grants the
// call and optimistically consumes one unit of budget. A low-water delay also
// consumes budget so concurrent callers see the reservation.
func (l *AdaptiveRateLimiter) delayLocked(class string, now time.Time) (time.Duration, WaitReason) {
	b := l.budgetLocked(class)

	if b.SecondaryBackoffUntil != nil {
		if now.Before(*b.SecondaryBackoffUntil) {
			return b.SecondaryBackoffUntil.Sub(now), WaitSecondary
		}
		b.SecondaryBackoffUntil = nil
	}

	if !b.Known() {
		return 0, WaitNone
	}

	if b.Remaining == 0 {
		if now.Before(b.ResetAt) {
			return b.ResetAt.Sub(now), WaitExhausted
		}
		// The window rolled over without a fresh observation.
		b.Remaining = b.Limit
		b.ResetAt = time.Time{}
	}

	lowWater := uint32(math.Ceil(float64(b.Limit) * l.config.LowWaterRatio))
	b.Remaining--
	if b.Remaining+1 < lowWater {
		return time.Duration(float64(l.config.MinInterval) * l.config.BackoffFactor), WaitLowWater
	}
	return 0, WaitNone
}

func (l *AdaptiveRateLimiter) pace(ctx context.Context, class string) (time.Duration, error) {
	l.mu.Lock()
	pacer, ok := l.pacers[class]
	if !ok {
		pacer = rate.NewLimiter(rate.Limit(l.config.MaxRate), l.config.Burst)
		l.pacers[class] = pacer
	}
	l.mu.Unlock()

	now := l.config.Clock.Now()
	r := pacer.ReserveN(now, 1)
	if !r.OK() {
		return 0, nil
	}
	delay := r.DelayFrom(now)
	if err := l.config.Clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.config.Clock.Now())
		return delay, err
	}
	return delay, nil
}

// UpdateFromResponse folds response metadata into the class budget. Server
// values always overwrite the optimistic local accounting.
func (l *AdaptiveRateLimiter) UpdateFromResponse(class string, obs Observation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.config.Clock.Now()
	b := l.budgetLocked(class)

	if obs.HasBudget && obs.Limit > 0 {
		b.Limit = obs.Limit
		b.Remaining = min(obs.Remaining, obs.Limit)
		b.ResetAt = obs.ResetAt
		if b.Remaining == 0 && !b.ResetAt.After(now) {
			b.ResetAt = now.Add(l.config.ExhaustedWait)
		}
	}

	switch {
	case obs.Secondary:
		exp := min(b.ConsecutiveSecondaryHits, l.config.MaxSecondaryExponent)
		backoff := l.config.SecondaryBase * time.Duration(uint64(1)<<exp)
		if obs.RetryAfter > backoff {
			backoff = obs.RetryAfter
		}
		until := now.Add(backoff)
		b.SecondaryBackoffUntil = &until
		b.ConsecutiveSecondaryHits++
	case obs.Success:
		b.ConsecutiveSecondaryHits = 0
	}
}

// SetBudget replaces the budget for class, e.g. to seed a known limit.
func (l *AdaptiveRateLimiter) SetBudget(class string, budget RateBudget) {
	l.mu.Lock()
	defer l.mu.Unlock()

	budget.Remaining = min(budget.Remaining, budget.Limit)
	if budget.SecondaryBackoffUntil != nil {
		until := *budget.SecondaryBackoffUntil
		budget.SecondaryBackoffUntil = &until
	}
	l.budgets[class] = &budget
}

// Budget returns a copy of the budget for class.
func (l *AdaptiveRateLimiter) Budget(class string) RateBudget {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.budgets[class]
	if !ok {
		return RateBudget{}
	}
	out := *b
	if b.SecondaryBackoffUntil != nil {
		until := *b.SecondaryBackoffUntil
		out.SecondaryBackoffUntil = &until
	}
	return out
}

// Classes returns the classes with a budget entry, sorted.
func (l *AdaptiveRateLimiter) Classes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.budgets))
	for name := range l.budgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *AdaptiveRateLimiter) budgetLocked(class string) *RateBudget {
	b, ok := l.budgets[class]
	if !ok {
		b = &RateBudget{}
		l.budgets[class] = b
	}
	return b
}
