package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/resilience"
)

func ExampleNewCircuitBreaker() {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "sts",
		FailureThreshold: 2,
		ResetTimeout:     30 * time.Second,
		Clock:            clk,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	fmt.Println(cb.Check())

	clk.Advance(30 * time.Second)
	fmt.Println(cb.Check(), cb.State())

	cb.RecordSuccess()
	fmt.Println(cb.State())
	// Output:
	// resilience: circuit breaker "sts" is open (retry in 30s)
	// <nil> half-open
	// closed
}

func ExampleBreakers() {
	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1})

	breakers.RecordFailure("search")

	fmt.Println(errors.Is(breakers.Check("search"), resilience.ErrCircuitOpen))
	fmt.Println(breakers.Check("repo-api"))
	// Output:
	// true
	// <nil>
}

func ExampleAdaptiveRateLimiter_Acquire() {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := resilience.NewAdaptiveRateLimiter(resilience.AdaptiveRateLimiterConfig{Clock: clk})

	limiter.UpdateFromResponse("repo-api", resilience.Observation{
		HasBudget: true,
		Limit:     5000,
		Remaining: 0,
		ResetAt:   clk.Now().Add(10 * time.Second),
	})

	permit, err := limiter.Acquire(context.Background(), "repo-api")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(permit.Reason, permit.Waited)
	// Output:
	// exhausted 10s
}

func ExampleNewRetry() {
	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Clock:        clock.NewFake(time.Now()),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			fmt.Printf("attempt %d failed, retrying in %s\n", attempt, delay)
		},
	})

	err := retry.Execute(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return errors.New("temporary failure")
		}
		return nil
	})
	fmt.Println("err:", err)
	// Output:
	// attempt 1 failed, retrying in 100ms
	// attempt 2 failed, retrying in 200ms
	// err: <nil>
}

func ExampleBulkhead_Metrics() {
	bh := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 4})

	_ = bh.Acquire(context.Background())
	m := bh.Metrics()
	fmt.Printf("active=%d available=%d\n", m.Active, m.Available)
	// Output:
	// active=1 available=3
}
