package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/remoteops/observe"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout bounds one Check or CheckAll. A checker still running when it
	// expires is reported unhealthy with ErrCheckTimeout.
	// Default: 10s
	Timeout time.Duration

	// Parallel runs checkers concurrently.
	Parallel bool

	// MaxParallel caps concurrent checkers when Parallel is set. Zero means
	// no cap.
	MaxParallel int

	// Logger receives one entry whenever a checker's status changes.
	Logger observe.Logger
}

// DefaultAggregatorConfig returns a parallel aggregator with a 10s timeout.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{Timeout: 10 * time.Second, Parallel: true}
}

type registration struct {
	name    string
	checker Checker
	last    Status
	seen    bool
}

// Aggregator runs named checkers and combines their results.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Ordering: checkers run and are listed in registration order.
type Aggregator struct {
	config AggregatorConfig
	logger observe.Logger

	mu   sync.Mutex
	regs []*registration
}

// NewAggregator creates an aggregator. Without a config it uses
// DefaultAggregatorConfig.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	cfg := DefaultAggregatorConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Aggregator{config: cfg, logger: observe.OrNop(cfg.Logger)}
}

// Register adds checker under name, replacing any checker already there
// while keeping its position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(name); i >= 0 {
		a.regs[i] = &registration{name: name, checker: checker}
		return
	}
	a.regs = append(a.regs, &registration{name: name, checker: checker})
}

// Unregister removes the checker registered under name.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(name); i >= 0 {
		a.regs = slices.Delete(a.regs, i, i+1)
	}
}

// CheckerNames lists registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.regs))
	for i, r := range a.regs {
		names[i] = r.name
	}
	return names
}

func (a *Aggregator) indexLocked(name string) int {
	return slices.IndexFunc(a.regs, func(r *registration) bool { return r.name == name })
}

// Check runs the checker registered under name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.Lock()
	i := a.indexLocked(name)
	var reg *registration
	if i >= 0 {
		reg = a.regs[i]
	}
	a.mu.Unlock()
	if reg == nil {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	result := run(ctx, reg.checker)
	a.record(ctx, reg, result)
	return result, nil
}

// CheckAll runs every checker and returns the results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.Lock()
	regs := slices.Clone(a.regs)
	a.mu.Unlock()

	results := make(map[string]Result, len(regs))
	if len(regs) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	out := make([]Result, len(regs))
	if a.config.Parallel {
		var g errgroup.Group
		if a.config.MaxParallel > 0 {
			g.SetLimit(a.config.MaxParallel)
		}
		for i, reg := range regs {
			g.Go(func() error {
				out[i] = run(ctx, reg.checker)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, reg := range regs {
			out[i] = run(ctx, reg.checker)
		}
	}

	for i, reg := range regs {
		results[reg.name] = out[i]
		a.record(ctx, reg, out[i])
	}
	return results
}

// OverallStatus returns the worst status in results, healthy when empty.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		status = Worst(status, r.Status)
	}
	return status
}

// run calls checker, giving up when ctx ends. An abandoned checker keeps
// running in the background until it returns.
func run(ctx context.Context, checker Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		r := checker.Check(ctx)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		r.Duration = time.Since(start)
		done <- r
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		r := Unhealthy("check timed out", ErrCheckTimeout)
		r.Timestamp = start
		r.Duration = time.Since(start)
		return r
	}
}

// record logs status changes of reg. Results for a registration that was
// replaced or removed meanwhile are not logged.
func (a *Aggregator) record(ctx context.Context, reg *registration, result Result) {
	a.mu.Lock()
	if a.indexLocked(reg.name) < 0 || a.regs[a.indexLocked(reg.name)] != reg {
		a.mu.Unlock()
		return
	}
	prev, seen := reg.last, reg.seen
	reg.last, reg.seen = result.Status, true
	a.mu.Unlock()

	if seen && prev == result.Status {
		return
	}
	fields := []observe.Field{
		{Key: "check", Value: reg.name},
		{Key: "status", Value: result.Status.String()},
		{Key: "message", Value: result.Message},
	}
	if seen {
		fields = append(fields, observe.Field{Key: "previous", Value: prev.String()})
	}
	if result.Status == StatusHealthy {
		a.logger.Info(ctx, "health status changed", fields...)
		return
	}
	if result.Error != nil {
		fields = append(fields, observe.Field{Key: "error", Value: result.Error})
	}
	a.logger.Warn(ctx, "health status changed", fields...)
}

// Checker exposes the aggregator as a single Checker named "aggregate",
// so one aggregator can be nested in another.
func (a *Aggregator) Checker() Checker {
	return CheckFunc("aggregate", func(ctx context.Context) Result {
		results := a.CheckAll(ctx)
		status := a.OverallStatus(results)

		details := make(map[string]any, len(results))
		for name, r := range results {
			details[name] = r.Status.String()
		}

		var r Result
		switch status {
		case StatusHealthy:
			r = Healthy("all checks passed")
		case StatusDegraded:
			r = Degraded("some checks degraded")
		default:
			r = Unhealthy("some checks failed", nil)
		}
		return r.WithDetails(details)
	})
}
