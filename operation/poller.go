package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/observe"
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	// BaseInterval is the poll interval while the operation is young.
	// Default: 10s
	BaseInterval time.Duration

	// FastPhase is the operation age below which BaseInterval applies.
	// Default: 2 minutes
	FastPhase time.Duration

	// GrowthFactor multiplies the interval on every poll after FastPhase.
	// Default: 2
	GrowthFactor float64

	// MaxInterval caps the poll interval.
	// Default: 2 minutes
	MaxInterval time.Duration

	// MaxConsecutiveErrors ends a wait with a PollError.
	// Default: 5
	MaxConsecutiveErrors int

	// DefaultTimeout applies when WaitForCompletion is given no timeout.
	// Default: 30 minutes
	DefaultTimeout time.Duration

	// Class labels spans and metrics. Default: "operation"
	Class string

	// Clock supplies time. Default: wall clock.
	Clock clock.Clock

	// Telemetry receives poll spans, metrics and logs. Default: no-op.
	Telemetry *observe.Telemetry
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 10 * time.Second
	}
	if c.FastPhase <= 0 {
		c.FastPhase = 2 * time.Minute
	}
	if c.GrowthFactor < 1 {
		c.GrowthFactor = 2
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Minute
	}
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = c.BaseInterval
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 5
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Minute
	}
	if c.Class == "" {
		c.Class = "operation"
	}
	c.Clock = clock.OrReal(c.Clock)
	c.Telemetry = observe.OrNopTelemetry(c.Telemetry)
	return c
}

// Handle is the local tracker for one remote operation.
type Handle struct {
	// ID is a locally generated handle id, distinct from the remote
	// operation id.
	ID string

	pollMu sync.Mutex // serializes polls

	mu        sync.Mutex
	op        Operation
	machine   *machine
	cancelled bool

	ctx  context.Context
	stop context.CancelFunc
}

// Snapshot returns the current operation state.
func (h *Handle) Snapshot() Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op
}

// Done is closed once the operation is terminal, has vanished, or the
// handle was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

func (h *Handle) stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// nextPollAt returns when the next poll is due. A handle that was never
// polled is due immediately.
func (h *Handle) nextPollAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.op.Polls == 0 {
		return time.Time{}
	}
	return h.op.LastPolledAt.Add(h.op.PollInterval)
}

// Poller tracks remote operations to completion.
//
// Contract:
//   - Concurrency: safe for concurrent use. Handles share no state.
//   - Context: every wait returns promptly once ctx is done.
type Poller struct {
	source StatusSource
	config PollerConfig
	log    observe.Logger
}

// NewPoller creates a poller reading from source.
func NewPoller(source StatusSource, config PollerConfig) *Poller {
	config = config.withDefaults()
	return &Poller{
		source: source,
		config: config,
		log:    config.Telemetry.Logger.With(observe.Field{Key: "component", Value: "operation"}),
	}
}

// Config returns the effective configuration.
func (p *Poller) Config() PollerConfig {
	return p.config
}

// Start begins tracking a dispatched operation. No remote call is made until
// the first poll.
func (p *Poller) Start(ctx context.Context, d Dispatch) (*Handle, error) {
	if d.ID == "" {
		return nil, ErrInvalidDispatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := d.CreatedAt
	if created.IsZero() {
		created = p.config.Clock.Now()
	}

	h := &Handle{
		ID: uuid.NewString(),
		op: Operation{
			ID:           d.ID,
			State:        d.State,
			CreatedAt:    created,
			PollInterval: p.config.BaseInterval,
		},
	}
	h.ctx, h.stop = context.WithCancel(context.Background())

	log := p.log.With(observe.Field{Key: "operation_id", Value: d.ID}, observe.Field{Key: "handle", Value: h.ID})
	h.machine = newMachine(d.State.Status, func(from, to Status) {
		log.Debug(ctx, "operation state changed",
			observe.Field{Key: "from", Value: string(from)},
			observe.Field{Key: "to", Value: string(to)},
		)
	})
	if d.State.Terminal() {
		h.stop()
	}
	return h, nil
}

// PollOnce performs one status poll for h and returns the new snapshot. It
// is idempotent once the operation is done: no further remote calls are
// made.
//
// Transient errors are returned as-is after counting them in
// ConsecutiveErrors. A not-found after a state was observed marks the
// operation Vanished and returns no error.
func (p *Poller) PollOnce(ctx context.Context, h *Handle) (Operation, error) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()
	return p.pollLocked(ctx, h)
}

func (p *Poller) pollLocked(ctx context.Context, h *Handle) (Operation, error) {
	snap := h.Snapshot()
	if snap.Done() {
		return snap, nil
	}
	if h.stopped() {
		return snap, ErrStopped
	}

	tel := p.config.Telemetry
	meta := observe.CallMeta{Operation: "poll", Class: p.config.Class, RequestID: snap.ID, Attempts: snap.Polls + 1}
	spanCtx, span := tel.Tracer.StartSpan(ctx, meta)
	status, err := p.source.FetchStatus(spanCtx, snap.ID)
	if err == nil {
		err = p.validate(h, status.State)
	}
	tel.Tracer.EndSpan(span, meta, err)

	now := p.config.Clock.Now()
	if err != nil && ctx.Err() != nil {
		return h.Snapshot(), ctx.Err()
	}

	h.mu.Lock()
	h.op.LastPolledAt = now
	h.op.Polls++
	h.op.PollInterval = p.nextInterval(h.op, now)

	var outcome string
	switch {
	case err == nil:
		h.op.State = normalize(status.State)
		h.op.ConsecutiveErrors = 0
		outcome = "ok"
		if h.op.State.Terminal() {
			outcome = "terminal"
		}
	case errors.Is(err, ErrOperationNotFound) && h.op.State.Known():
		h.op.Vanished = true
		outcome = "vanished"
		err = nil
	case errors.Is(err, ErrOperationNotFound):
		outcome = "not_found"
	default:
		h.op.ConsecutiveErrors++
		outcome = "error"
	}
	op := h.op
	h.mu.Unlock()

	tel.Metrics.RecordPoll(ctx, outcome)
	if op.Done() {
		h.stop()
	}
	if err != nil {
		p.log.Warn(ctx, "operation poll failed",
			observe.Field{Key: "operation_id", Value: op.ID},
			observe.Field{Key: "consecutive_errors", Value: op.ConsecutiveErrors},
			observe.Field{Key: "error", Value: err},
		)
	}
	return op, err
}

// validate checks the reported state against the handle's machine and
// advances it.
func (p *Poller) validate(h *Handle, s State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.machine.advance(s.Status)
}

func normalize(s State) State {
	if s.Terminal() && s.Conclusion == "" {
		s.Conclusion = ConclusionNeutral
	}
	if !s.Terminal() {
		s.Conclusion = ""
	}
	return s
}

// nextInterval keeps BaseInterval while the operation is younger than
// FastPhase, then grows the interval by GrowthFactor per poll up to
// MaxInterval.
func (p *Poller) nextInterval(op Operation, now time.Time) time.Duration {
	if now.Sub(op.CreatedAt) < p.config.FastPhase {
		return p.config.BaseInterval
	}
	next := time.Duration(float64(op.PollInterval) * p.config.GrowthFactor)
	if next > p.config.MaxInterval || next <= 0 {
		next = p.config.MaxInterval
	}
	if next < p.config.BaseInterval {
		next = p.config.BaseInterval
	}
	return next
}

// pollIfDue polls only when the handle's next poll time has passed, so
// several loops over one handle share a single cadence.
func (p *Poller) pollIfDue(ctx context.Context, h *Handle) (Operation, error) {
	h.pollMu.Lock()
	defer h.pollMu.Unlock()

	if due := h.nextPollAt(); p.config.Clock.Now().Before(due) {
		snap := h.Snapshot()
		if h.stopped() && !snap.Done() {
			return snap, ErrStopped
		}
		return snap, nil
	}
	return p.pollLocked(ctx, h)
}

// WaitForCompletion polls h until it reaches a terminal state.
//
// It returns the terminal snapshot, or the last snapshot together with:
//   - *OperationTimeoutError once timeout (clock time) elapses,
//   - *PollError after MaxConsecutiveErrors transient failures in a row,
//   - ErrOperationNotFound when the operation never existed,
//   - ErrStopped after Cancel,
//   - ctx.Err() when ctx is done.
//
// A non-positive timeout uses PollerConfig.DefaultTimeout.
func (p *Poller) WaitForCompletion(ctx context.Context, h *Handle, timeout time.Duration) (Operation, error) {
	if timeout <= 0 {
		timeout = p.config.DefaultTimeout
	}
	clk := p.config.Clock
	deadline := clk.Now().Add(timeout)

	loopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sleepCtx, cancelSleep := context.WithCancel(loopCtx)
	defer cancelSleep()
	defer context.AfterFunc(h.ctx, cancelSleep)()

	for {
		op, err := p.pollIfDue(loopCtx, h)
		switch {
		case err == nil:
			if op.Done() {
				return op, nil
			}
		case errors.Is(err, ErrStopped):
			return op, err
		case loopCtx.Err() != nil:
			return p.interrupted(ctx, h, timeout)
		case errors.Is(err, ErrOperationNotFound):
			return op, err
		case op.ConsecutiveErrors >= p.config.MaxConsecutiveErrors:
			return op, &PollError{ID: op.ID, ConsecutiveErrors: op.ConsecutiveErrors, LastState: op.State, Err: err}
		}

		wait := clock.Until(clk, h.nextPollAt())
		remaining := clock.Until(clk, deadline)
		if remaining <= wait {
			if err := clk.Sleep(sleepCtx, remaining); err != nil {
				return p.interrupted(ctx, h, timeout)
			}
			op = h.Snapshot()
			if op.Done() {
				return op, nil
			}
			return op, &OperationTimeoutError{ID: op.ID, Timeout: timeout, LastState: op.State}
		}
		if err := clk.Sleep(sleepCtx, wait); err != nil {
			return p.interrupted(ctx, h, timeout)
		}
	}
}

// interrupted maps a cancelled wait to its result.
func (p *Poller) interrupted(ctx context.Context, h *Handle, timeout time.Duration) (Operation, error) {
	op := h.Snapshot()
	switch {
	case op.Done():
		return op, nil
	case h.stopped():
		return op, ErrStopped
	case ctx.Err() != nil:
		return op, ctx.Err()
	default:
		return op, &OperationTimeoutError{ID: op.ID, Timeout: timeout, LastState: op.State}
	}
}

// Cancel stops local polling of h and asks the remote side to cancel the
// operation. The local loop stops even when the remote cancel fails; that
// failure is still returned. Cancelling a finished operation is a no-op.
func (p *Poller) Cancel(ctx context.Context, h *Handle) error {
	h.mu.Lock()
	if h.op.Done() || h.cancelled {
		h.mu.Unlock()
		return nil
	}
	h.cancelled = true
	id := h.op.ID
	h.mu.Unlock()
	h.stop()

	if err := p.source.Cancel(ctx, id); err != nil {
		p.log.Warn(ctx, "remote cancel failed",
			observe.Field{Key: "operation_id", Value: id},
			observe.Field{Key: "error", Value: err},
		)
		return fmt.Errorf("operation: cancel %s: %w", id, err)
	}
	p.log.Info(ctx, "operation cancelled", observe.Field{Key: "operation_id", Value: id})
	return nil
}
