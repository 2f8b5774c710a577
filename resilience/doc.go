// Package resilience provides the failure-handling primitives of the client
// core: per-class adaptive rate limiting, per-class circuit breaking, retry
// with backoff, and a concurrency bulkhead.
//
// # Patterns
//
//   - AdaptiveRateLimiter: gates calls using the budget the server reports
//     (limit, remaining, reset) and backs off exponentially on secondary
//     rate-limit signals.
//
//   - CircuitBreaker: fails fast after a run of failures and admits a single
//     trial call once the reset timeout has elapsed. Breakers holds one
//     breaker per endpoint class.
//
//   - Retry: retries failed operations with exponential, linear or constant
//     backoff, honoring server Retry-After hints.
//
//   - Bulkhead: limits the number of operations in flight.
//
// Every time-dependent type takes a clock.Clock so tests run against a fake
// clock without real sleeps.
//
// # Usage
//
//	limiter := resilience.NewAdaptiveRateLimiter(resilience.AdaptiveRateLimiterConfig{})
//	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    ResetTimeout:     30 * time.Second,
//	})
//
//	if err := breakers.Check("repo-api"); err != nil {
//	    return err // *CircuitOpenError, no network I/O
//	}
//	if _, err := limiter.Acquire(ctx, "repo-api"); err != nil {
//	    breakers.Abandon("repo-api")
//	    return err
//	}
//	resp, err := send(ctx)
//	limiter.UpdateFromResponse("repo-api", observationFrom(resp))
package resilience
