package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *clock.Fake) {
	clk := clock.NewFake(epoch)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		Clock:            clk,
	})
	return cb, clk
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.State() != StateClosed {
		t.Errorf("Initial state = %v, want closed", cb.State())
	}
	if cb.config.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cb.config.FailureThreshold)
	}
	if cb.config.SuccessThreshold != 3 {
		t.Errorf("SuccessThreshold = %d, want 3", cb.config.SuccessThreshold)
	}
	if cb.config.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.config.ResetTimeout)
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Errorf("After %d failures, state = %v, want closed", i+1, cb.State())
		}
		if err := cb.Check(); err != nil {
			t.Errorf("Check() after %d failures = %v, want nil", i+1, err)
		}
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("After 3 failures, state = %v, want open", cb.State())
	}

	err := cb.Check()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Check() when open = %v, want ErrCircuitOpen", err)
	}
	var coe *CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("Check() error type = %T, want *CircuitOpenError", err)
	}
	if coe.Name != "test" || coe.State != StateOpen || coe.RetryAfter != time.Second {
		t.Errorf("CircuitOpenError = %+v", coe)
	}
}

func TestCircuitBreaker_ThresholdAndResetScenario(t *testing.T) {
	cb, clk := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if err := cb.Check(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Check() after 5 failures = %v, want ErrCircuitOpen", err)
	}

	clk.Advance(31 * time.Second)
	if err := cb.Check(); err != nil {
		t.Fatalf("Check() after reset timeout = %v, want nil", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.RecordSuccess()
	for i := 0; i < 3; i++ {
		if err := cb.Check(); err != nil {
			t.Errorf("Check() #%d after trial success = %v, want nil", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OpenRejectsUntilTimeout(t *testing.T) {
	cb, clk := newTestBreaker(1, 30*time.Second)
	cb.RecordFailure()

	clk.Advance(29 * time.Second)
	err := cb.Check()
	var coe *CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("Check() = %v, want *CircuitOpenError", err)
	}
	if coe.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s", coe.RetryAfter)
	}

	clk.Advance(time.Second)
	if err := cb.Check(); err != nil {
		t.Errorf("Check() at exactly openedAt+resetTimeout = %v, want nil", err)
	}
}

func TestCircuitBreaker_HalfOpenSingleTrial(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.RecordFailure()
	clk.Advance(time.Second)

	const callers = 50
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if cb.Check() == nil {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Errorf("admitted half-open calls = %d, want exactly 1", got)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(2, 10*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()

	clk.Advance(10 * time.Second)
	if err := cb.Check(); err != nil {
		t.Fatalf("Check() = %v, want trial admitted", err)
	}
	cb.RecordFailure()

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	m := cb.Metrics()
	if !m.OpenedAt.Equal(clk.Now()) {
		t.Errorf("OpenedAt = %v, want %v", m.OpenedAt, clk.Now())
	}
	if m.Failures != 2 {
		t.Errorf("Failures = %d, want threshold 2", m.Failures)
	}

	// A fresh timeout applies from the failed trial.
	clk.Advance(9 * time.Second)
	if err := cb.Check(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Check() 9s after reopen = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_AbandonReleasesTrial(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.RecordFailure()
	clk.Advance(time.Second)

	if err := cb.Check(); err != nil {
		t.Fatalf("Check() = %v", err)
	}
	if err := cb.Check(); err == nil {
		t.Fatal("second Check() admitted while trial in flight")
	}

	cb.Abandon()
	if cb.State() != StateHalfOpen {
		t.Errorf("state after Abandon = %v, want half-open", cb.State())
	}
	if err := cb.Check(); err != nil {
		t.Errorf("Check() after Abandon = %v, want nil", err)
	}
}

func TestCircuitBreaker_SuccessThresholdClearsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordSuccess()

	if got := cb.Metrics().Failures; got != 2 {
		t.Errorf("Failures after 2 successes = %d, want 2", got)
	}

	cb.RecordSuccess()
	if got := cb.Metrics().Failures; got != 0 {
		t.Errorf("Failures after 3 successes = %d, want 0", got)
	}

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	testErr := errors.New("test error")

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return testErr
	})
	if err != testErr {
		t.Errorf("Execute() error = %v, want %v", err, testErr)
	}

	err = cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Error("Should not be called when circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() when open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_IsFailure(t *testing.T) {
	ignored := errors.New("not found")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && err != ignored },
	})

	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return ignored })
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed for ignored error", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	cb.RecordFailure()

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want closed", cb.State())
	}
	if err := cb.Check(); err != nil {
		t.Errorf("Check() after Reset = %v", err)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clk := clock.NewFake(epoch)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "sts",
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		Clock:            clk,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	cb.RecordFailure()
	clk.Advance(time.Second)
	_ = cb.Check()
	cb.RecordSuccess()

	want := []string{"sts:closed->open", "sts:open->half-open", "sts:half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)

	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	_ = cb.Check()

	m := cb.Metrics()
	if m.Name != "test" {
		t.Errorf("Name = %q, want test", m.Name)
	}
	if m.State != StateOpen {
		t.Errorf("State = %v, want open", m.State)
	}
	if m.TotalSuccesses != 1 || m.TotalFailures != 2 || m.Rejected != 1 {
		t.Errorf("totals = %d/%d/%d, want 1/2/1", m.TotalSuccesses, m.TotalFailures, m.Rejected)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreakers_IsolatedClasses(t *testing.T) {
	clk := clock.NewFake(epoch)
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 2, Clock: clk})

	b.RecordFailure("sts")
	b.RecordFailure("sts")

	if err := b.Check("sts"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Check(sts) = %v, want ErrCircuitOpen", err)
	}
	if err := b.Check("repo-api"); err != nil {
		t.Errorf("Check(repo-api) = %v, want nil", err)
	}

	classes := b.Classes()
	if len(classes) != 2 || classes[0] != "repo-api" || classes[1] != "sts" {
		t.Errorf("Classes() = %v", classes)
	}

	snap := b.Snapshot()
	if snap["sts"].State != StateOpen || snap["repo-api"].State != StateClosed {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestBreakers_Configure(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 5})
	b.Configure("sts", CircuitBreakerConfig{FailureThreshold: 1})

	b.RecordFailure("sts")
	if got := b.Get("sts").State(); got != StateOpen {
		t.Errorf("sts state = %v, want open", got)
	}
	if got := b.Get("sts").Name(); got != "sts" {
		t.Errorf("Name() = %q, want sts", got)
	}
}
