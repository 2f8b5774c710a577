package health

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
	"github.com/jonwraymond/remoteops/resilience"
)

// BreakerSnapshotter reports circuit state per endpoint class.
// *resilience.Breakers implements it.
type BreakerSnapshotter interface {
	Snapshot() map[string]resilience.CircuitBreakerMetrics
}

// CircuitCheckerConfig configures a CircuitChecker.
type CircuitCheckerConfig struct {
	// UnhealthyRatio is the share of open classes at which the check
	// turns unhealthy. Fewer open or half-open classes report degraded.
	// Default: 0.5
	UnhealthyRatio float64
}

// CircuitChecker reports endpoint classes whose circuit is not closed.
type CircuitChecker struct {
	config   CircuitCheckerConfig
	breakers BreakerSnapshotter
}

// NewCircuitChecker creates a circuit health checker.
func NewCircuitChecker(breakers BreakerSnapshotter, config CircuitCheckerConfig) *CircuitChecker {
	if config.UnhealthyRatio <= 0 || config.UnhealthyRatio > 1 {
		config.UnhealthyRatio = 0.5
	}
	return &CircuitChecker{config: config, breakers: breakers}
}

// Name returns "circuits".
func (c *CircuitChecker) Name() string {
	return "circuits"
}

// Check inspects every breaker created so far.
func (c *CircuitChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	snapshot := c.breakers.Snapshot()
	if len(snapshot) == 0 {
		return Healthy("no endpoint classes")
	}

	var open, halfOpen []string
	details := make(map[string]any, len(snapshot))
	for class, m := range snapshot {
		details[class] = map[string]any{
			"state":          m.State.String(),
			"failures":       m.Failures,
			"total_failures": m.TotalFailures,
			"rejected":       m.Rejected,
		}
		switch m.State {
		case resilience.StateOpen:
			open = append(open, class)
		case resilience.StateHalfOpen:
			halfOpen = append(halfOpen, class)
		}
	}
	sort.Strings(open)
	sort.Strings(halfOpen)

	ratio := float64(len(open)) / float64(len(snapshot))
	switch {
	case len(open) > 0 && ratio >= c.config.UnhealthyRatio:
		return Unhealthy(fmt.Sprintf("circuits open: %v", open), ErrCircuitsOpen).WithDetails(details)
	case len(open) > 0:
		return Degraded(fmt.Sprintf("circuits open: %v", open)).WithDetails(details)
	case len(halfOpen) > 0:
		return Degraded(fmt.Sprintf("circuits probing: %v", halfOpen)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d circuits closed", len(snapshot))).WithDetails(details)
	}
}

// CredentialStatser reports cache counters. *credential.Cache implements it.
type CredentialStatser interface {
	Stats() credential.Stats
}

// CredentialChecker reports credential refresh failures since its previous
// check. Refreshes that only failed mean no key could be renewed.
type CredentialChecker struct {
	cache CredentialStatser

	mu   sync.Mutex
	prev credential.Stats
}

// NewCredentialChecker creates a credential health checker. Failures that
// happened before it was created are not reported.
func NewCredentialChecker(cache CredentialStatser) *CredentialChecker {
	return &CredentialChecker{cache: cache, prev: cache.Stats()}
}

// Name returns "credentials".
func (c *CredentialChecker) Name() string {
	return "credentials"
}

// Check compares the cache counters with the previous check.
func (c *CredentialChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	stats := c.cache.Stats()
	c.mu.Lock()
	prev := c.prev
	c.prev = stats
	c.mu.Unlock()

	refreshed := stats.Refreshes - prev.Refreshes
	failed := stats.RefreshFailures - prev.RefreshFailures
	details := map[string]any{
		"entries":          stats.Entries,
		"refreshes":        refreshed,
		"refresh_failures": failed,
		"hits":             stats.Hits,
		"stale_hits":       stats.StaleHits,
		"misses":           stats.Misses,
	}

	switch {
	case failed > 0 && refreshed == 0:
		return Unhealthy(fmt.Sprintf("%d credential refreshes failed", failed), ErrRefreshFailing).WithDetails(details)
	case failed > 0:
		return Degraded(fmt.Sprintf("%d of %d credential refreshes failed", failed, failed+refreshed)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d credentials cached", stats.Entries)).WithDetails(details)
	}
}

// BudgetReporter reports rate budgets per class.
// *resilience.AdaptiveRateLimiter implements it.
type BudgetReporter interface {
	Classes() []string
	Budget(class string) resilience.RateBudget
}

// RateLimitCheckerConfig configures a RateLimitChecker.
type RateLimitCheckerConfig struct {
	// LowWaterRatio is the remaining share below which a class is reported
	// as degraded.
	// Default: 0.05
	LowWaterRatio float64

	// Clock decides whether secondary backoffs and resets are current.
	// Default: the real clock.
	Clock clock.Clock
}

// RateLimitChecker reports classes that are throttled. Throttling is never
// unhealthy: the limiter waits it out.
type RateLimitChecker struct {
	config  RateLimitCheckerConfig
	budgets BudgetReporter
}

// NewRateLimitChecker creates a rate-limit health checker.
func NewRateLimitChecker(budgets BudgetReporter, config RateLimitCheckerConfig) *RateLimitChecker {
	if config.LowWaterRatio <= 0 || config.LowWaterRatio >= 1 {
		config.LowWaterRatio = 0.05
	}
	config.Clock = clock.OrReal(config.Clock)
	return &RateLimitChecker{config: config, budgets: budgets}
}

// Name returns "rate_limits".
func (c *RateLimitChecker) Name() string {
	return "rate_limits"
}

// Check inspects the budget of every known class.
func (c *RateLimitChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	now := c.config.Clock.Now()
	var throttled []string
	details := make(map[string]any)
	for _, class := range c.budgets.Classes() {
		b := c.budgets.Budget(class)
		entry := map[string]any{
			"limit":     b.Limit,
			"remaining": b.Remaining,
		}
		reason := ""
		switch {
		case b.SecondaryBackoffUntil != nil && now.Before(*b.SecondaryBackoffUntil):
			reason = "secondary"
			entry["backoff_until"] = *b.SecondaryBackoffUntil
		case b.Known() && now.Before(b.ResetAt) &&
			float64(b.Remaining) < c.config.LowWaterRatio*float64(b.Limit):
			reason = "low"
			entry["reset_at"] = b.ResetAt
		}
		if reason != "" {
			entry["throttled"] = reason
			throttled = append(throttled, class)
		}
		details[class] = entry
	}

	if len(throttled) > 0 {
		return Degraded(fmt.Sprintf("rate limited: %v", throttled)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d classes within budget", len(details))).WithDetails(details)
}

var (
	_ Checker = (*CircuitChecker)(nil)
	_ Checker = (*CredentialChecker)(nil)
	_ Checker = (*RateLimitChecker)(nil)

	_ BreakerSnapshotter = (*resilience.Breakers)(nil)
	_ CredentialStatser  = (*credential.Cache)(nil)
	_ BudgetReporter     = (*resilience.AdaptiveRateLimiter)(nil)
)
