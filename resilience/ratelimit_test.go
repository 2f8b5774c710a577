package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

func newTestLimiter(config AdaptiveRateLimiterConfig) (*AdaptiveRateLimiter, *clock.Fake) {
	clk := clock.NewFake(epoch)
	config.Clock = clk
	return NewAdaptiveRateLimiter(config), clk
}

func TestNewAdaptiveRateLimiter_Defaults(t *testing.T) {
	l := NewAdaptiveRateLimiter(AdaptiveRateLimiterConfig{})

	if l.config.LowWaterRatio != 0.1 {
		t.Errorf("LowWaterRatio = %v, want 0.1", l.config.LowWaterRatio)
	}
	if l.config.MinInterval != 100*time.Millisecond {
		t.Errorf("MinInterval = %v, want 100ms", l.config.MinInterval)
	}
	if l.config.SecondaryBase != 60*time.Second {
		t.Errorf("SecondaryBase = %v, want 60s", l.config.SecondaryBase)
	}
	if l.config.MaxSecondaryExponent != 5 {
		t.Errorf("MaxSecondaryExponent = %d, want 5", l.config.MaxSecondaryExponent)
	}
}

func TestAdaptiveRateLimiter_UnknownBudgetPassesThrough(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})

	for i := 0; i < 10; i++ {
		permit, err := l.Acquire(context.Background(), "repo-api")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if permit.Waited != 0 {
			t.Errorf("Waited = %v, want 0", permit.Waited)
		}
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("Sleeps = %v, want none", clk.Sleeps())
	}
}

func TestAdaptiveRateLimiter_ExhaustedWaitsForReset(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	start := clk.Now()
	l.SetBudget("repo-api", RateBudget{Limit: 100, Remaining: 0, ResetAt: start.Add(10 * time.Second)})

	permit, err := l.Acquire(context.Background(), "repo-api")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if clk.Now().Before(start.Add(10 * time.Second)) {
		t.Errorf("Acquire returned at %v, want no earlier than +10s", clk.Now().Sub(start))
	}
	if permit.Reason != WaitExhausted {
		t.Errorf("Reason = %q, want %q", permit.Reason, WaitExhausted)
	}
	if permit.Waited != 10*time.Second {
		t.Errorf("Waited = %v, want 10s", permit.Waited)
	}

	// The window rolled over: the grant consumed one unit of the new budget.
	if b := l.Budget("repo-api"); b.Remaining != 99 {
		t.Errorf("Remaining after rollover = %d, want 99", b.Remaining)
	}
}

func TestAdaptiveRateLimiter_ExhaustedCancelled(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	l.SetBudget("repo-api", RateBudget{Limit: 10, ResetAt: clk.Now().Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Acquire(ctx, "repo-api")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestAdaptiveRateLimiter_OptimisticDecrement(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	l.SetBudget("repo-api", RateBudget{Limit: 100, Remaining: 50, ResetAt: clk.Now().Add(time.Minute)})

	for i := 0; i < 5; i++ {
		if _, err := l.Acquire(context.Background(), "repo-api"); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if b := l.Budget("repo-api"); b.Remaining != 45 {
		t.Errorf("Remaining = %d, want 45", b.Remaining)
	}
}

func TestAdaptiveRateLimiter_LowWaterThrottles(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{
		MinInterval:   100 * time.Millisecond,
		BackoffFactor: 2,
	})
	l.SetBudget("repo-api", RateBudget{Limit: 100, Remaining: 5, ResetAt: clk.Now().Add(time.Minute)})

	permit, err := l.Acquire(context.Background(), "repo-api")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permit.Reason != WaitLowWater {
		t.Errorf("Reason = %q, want %q", permit.Reason, WaitLowWater)
	}
	if permit.Waited != 200*time.Millisecond {
		t.Errorf("Waited = %v, want 200ms", permit.Waited)
	}
	if b := l.Budget("repo-api"); b.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", b.Remaining)
	}
}

func TestAdaptiveRateLimiter_NeverGrantsWhileExhausted(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	reset := clk.Now().Add(5 * time.Second)
	l.SetBudget("repo-api", RateBudget{Limit: 3, Remaining: 3, ResetAt: reset})

	var mu sync.Mutex
	var grantedBeforeReset int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(context.Background(), "repo-api"); err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if clk.Now().Before(reset) {
				grantedBeforeReset++
			}
		}()
	}
	wg.Wait()

	// At most the three units of the first window can be granted before reset.
	if grantedBeforeReset > 3 {
		t.Errorf("granted before reset = %d, want <= 3", grantedBeforeReset)
	}
}

func TestAdaptiveRateLimiter_SecondaryBackoff(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{
		SecondaryBase:        time.Second,
		MaxSecondaryExponent: 3,
	})

	wants := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, want := range wants {
		l.UpdateFromResponse("search", Observation{Secondary: true})

		b := l.Budget("search")
		if b.SecondaryBackoffUntil == nil {
			t.Fatalf("hit %d: SecondaryBackoffUntil = nil", i+1)
		}
		if got := b.SecondaryBackoffUntil.Sub(clk.Now()); got != want {
			t.Errorf("hit %d: backoff = %v, want %v", i+1, got, want)
		}
		if b.ConsecutiveSecondaryHits != uint32(i+1) {
			t.Errorf("hit %d: ConsecutiveSecondaryHits = %d", i+1, b.ConsecutiveSecondaryHits)
		}
	}

	l.UpdateFromResponse("search", Observation{Success: true})
	if got := l.Budget("search").ConsecutiveSecondaryHits; got != 0 {
		t.Errorf("ConsecutiveSecondaryHits after success = %d, want 0", got)
	}
}

func TestAdaptiveRateLimiter_SecondaryRetryAfterWins(t *testing.T) {
	l, _ := newTestLimiter(AdaptiveRateLimiterConfig{SecondaryBase: time.Second})

	l.UpdateFromResponse("search", Observation{Secondary: true, RetryAfter: 45 * time.Second})

	permit, err := l.Acquire(context.Background(), "search")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permit.Reason != WaitSecondary {
		t.Errorf("Reason = %q, want %q", permit.Reason, WaitSecondary)
	}
	if permit.Waited != 45*time.Second {
		t.Errorf("Waited = %v, want 45s", permit.Waited)
	}
	if b := l.Budget("search"); b.SecondaryBackoffUntil != nil {
		t.Error("SecondaryBackoffUntil not cleared after expiry")
	}
}

func TestAdaptiveRateLimiter_UpdateOverwrites(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	reset := clk.Now().Add(time.Hour)

	l.SetBudget("repo-api", RateBudget{Limit: 100, Remaining: 10, ResetAt: reset})
	l.UpdateFromResponse("repo-api", Observation{
		HasBudget: true,
		Limit:     5000,
		Remaining: 9000,
		ResetAt:   reset,
		Success:   true,
	})

	b := l.Budget("repo-api")
	if b.Limit != 5000 {
		t.Errorf("Limit = %d, want 5000", b.Limit)
	}
	if b.Remaining != 5000 {
		t.Errorf("Remaining = %d, want clamped to 5000", b.Remaining)
	}
	if !b.ResetAt.Equal(reset) {
		t.Errorf("ResetAt = %v, want %v", b.ResetAt, reset)
	}
}

func TestAdaptiveRateLimiter_ExhaustedWithoutReset(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{ExhaustedWait: 30 * time.Second})

	l.UpdateFromResponse("repo-api", Observation{HasBudget: true, Limit: 60, Remaining: 0})

	b := l.Budget("repo-api")
	if want := clk.Now().Add(30 * time.Second); !b.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", b.ResetAt, want)
	}
}

func TestAdaptiveRateLimiter_Pacing(t *testing.T) {
	l, _ := newTestLimiter(AdaptiveRateLimiterConfig{MaxRate: 10, Burst: 1})

	if _, err := l.Acquire(context.Background(), "repo-api"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	permit, err := l.Acquire(context.Background(), "repo-api")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permit.Reason != WaitPacing {
		t.Errorf("Reason = %q, want %q", permit.Reason, WaitPacing)
	}
	if permit.Waited != 100*time.Millisecond {
		t.Errorf("Waited = %v, want 100ms", permit.Waited)
	}
}

func TestAdaptiveRateLimiter_ClassesIndependent(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	l.SetBudget("search", RateBudget{Limit: 30, Remaining: 0, ResetAt: clk.Now().Add(time.Minute)})

	permit, err := l.Acquire(context.Background(), "repo-api")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if permit.Waited != 0 {
		t.Errorf("repo-api Waited = %v, want 0", permit.Waited)
	}
}

func TestAdaptiveRateLimiter_Classes(t *testing.T) {
	l, clk := newTestLimiter(AdaptiveRateLimiterConfig{})
	l.SetBudget("search", RateBudget{Limit: 30, Remaining: 10, ResetAt: clk.Now().Add(time.Minute)})
	l.SetBudget("core", RateBudget{Limit: 5000, Remaining: 4000, ResetAt: clk.Now().Add(time.Hour)})

	got := l.Classes()
	if len(got) != 2 || got[0] != "core" || got[1] != "search" {
		t.Errorf("Classes() = %v, want [core search]", got)
	}
}
