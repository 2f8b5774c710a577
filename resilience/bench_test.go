package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

// BenchmarkCircuitBreaker_CheckRecord measures the closed-state happy path.
func BenchmarkCircuitBreaker_CheckRecord(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 100})

	for b.Loop() {
		if cb.Check() == nil {
			cb.RecordSuccess()
		}
	}
}

// BenchmarkCircuitBreaker_CheckOpen measures fail-fast rejection.
func BenchmarkCircuitBreaker_CheckOpen(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	cb.RecordFailure()

	for b.Loop() {
		_ = cb.Check()
	}
}

// BenchmarkCircuitBreaker_Concurrent measures contention on one breaker.
func BenchmarkCircuitBreaker_Concurrent(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 100})

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if cb.Check() == nil {
				cb.RecordSuccess()
			}
		}
	})
}

// BenchmarkBreakers_Get measures registry lookup.
func BenchmarkBreakers_Get(b *testing.B) {
	reg := NewBreakers(CircuitBreakerConfig{})
	_ = reg.Get("repo-api")

	for b.Loop() {
		_ = reg.Get("repo-api")
	}
}

// BenchmarkAdaptiveRateLimiter_Acquire measures a grant with ample budget.
func BenchmarkAdaptiveRateLimiter_Acquire(b *testing.B) {
	clk := clock.NewFake(time.Now())
	l := NewAdaptiveRateLimiter(AdaptiveRateLimiterConfig{Clock: clk})
	ctx := context.Background()

	for b.Loop() {
		l.SetBudget("repo-api", RateBudget{Limit: 5000, Remaining: 5000, ResetAt: clk.Now().Add(time.Hour)})
		_, _ = l.Acquire(ctx, "repo-api")
	}
}

// BenchmarkAdaptiveRateLimiter_UpdateFromResponse measures budget folding.
func BenchmarkAdaptiveRateLimiter_UpdateFromResponse(b *testing.B) {
	l := NewAdaptiveRateLimiter(AdaptiveRateLimiterConfig{})
	obs := Observation{HasBudget: true, Limit: 5000, Remaining: 4000, ResetAt: time.Now().Add(time.Hour), Success: true}

	for b.Loop() {
		l.UpdateFromResponse("repo-api", obs)
	}
}

// BenchmarkRetry_NoRetries measures the overhead when the first attempt succeeds.
func BenchmarkRetry_NoRetries(b *testing.B) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})
	ctx := context.Background()

	for b.Loop() {
		_ = r.Execute(ctx, func(ctx context.Context, attempt int) error {
			return nil
		})
	}
}

// BenchmarkBulkhead_Execute measures slot acquisition and release.
func BenchmarkBulkhead_Execute(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 100})
	ctx := context.Background()

	for b.Loop() {
		_ = bh.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

// BenchmarkErrorIs measures matching a wrapped circuit rejection.
func BenchmarkErrorIs(b *testing.B) {
	err := error(&CircuitOpenError{Name: "sts", State: StateOpen})

	for b.Loop() {
		_ = errors.Is(err, ErrCircuitOpen)
	}
}
