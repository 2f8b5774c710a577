package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
	"github.com/jonwraymond/remoteops/observe"
	"github.com/jonwraymond/remoteops/resilience"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Transport sends requests. Required.
	Transport Transport

	// Signer authenticates requests that name a CredentialKey.
	Signer Signer

	// Credentials supplies credentials, usually a *credential.Cache.
	Credentials Credentials

	// Limiter throttles calls per endpoint class. Default: a limiter built
	// from LimiterConfig.
	Limiter       *resilience.AdaptiveRateLimiter
	LimiterConfig resilience.AdaptiveRateLimiterConfig

	// Breakers guards endpoint classes. Default: a registry built from
	// BreakerConfig whose transitions are reported to Telemetry.
	Breakers      *resilience.Breakers
	BreakerConfig resilience.CircuitBreakerConfig

	// Classifier interprets attempt outcomes. Default: DefaultClassifier.
	Classifier Classifier

	// Metadata extracts rate-limit headers. Default: DefaultHeaderParser().
	Metadata MetadataParser

	// Retry configures attempts and backoff. Jitter is always applied.
	// Default: 3 attempts, exponential from 100ms.
	Retry resilience.RetryConfig

	// MaxConcurrent bounds concurrent Execute calls. Zero means unbounded.
	MaxConcurrent int
	// FailFast rejects with resilience.ErrBulkheadFull at MaxConcurrent
	// instead of waiting.
	FailFast bool

	// AttemptTimeout bounds one Send. Default: 30s
	AttemptTimeout time.Duration

	// RequestIDHeader carries the generated request id.
	// Default: X-Request-Id
	RequestIDHeader string

	// Clock supplies time. Default: wall clock.
	Clock clock.Clock

	// Telemetry receives spans, metrics and logs. Default: no-op.
	Telemetry *observe.Telemetry
}

// Executor runs requests through breaker, credential, rate-limit, sign,
// send and classify steps.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: circuit rejections are *resilience.CircuitOpenError and are
//     never retried; credential failures are *credential.Error; everything
//     after dispatch is *ExecError.
type Executor struct {
	config   ExecutorConfig
	limiter  *resilience.AdaptiveRateLimiter
	breakers *resilience.Breakers
	retry    *resilience.Retry
	bulkhead *resilience.Bulkhead
	tel      *observe.Telemetry
	log      observe.Logger
}

// NewExecutor creates an executor.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if config.Transport == nil {
		return nil, ErrNoTransport
	}
	config.Clock = clock.OrReal(config.Clock)
	config.Telemetry = observe.OrNopTelemetry(config.Telemetry)
	if config.Classifier == nil {
		config.Classifier = DefaultClassifier{}
	}
	if config.Metadata == nil {
		config.Metadata = DefaultHeaderParser()
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = 30 * time.Second
	}
	if config.RequestIDHeader == "" {
		config.RequestIDHeader = "X-Request-Id"
	}

	e := &Executor{
		config: config,
		tel:    config.Telemetry,
		log:    config.Telemetry.Logger.With(observe.Field{Key: "component", Value: "client"}),
	}

	e.limiter = config.Limiter
	if e.limiter == nil {
		lc := config.LimiterConfig
		if lc.Clock == nil {
			lc.Clock = config.Clock
		}
		e.limiter = resilience.NewAdaptiveRateLimiter(lc)
	}

	e.breakers = config.Breakers
	if e.breakers == nil {
		bc := config.BreakerConfig
		if bc.Clock == nil {
			bc.Clock = config.Clock
		}
		if bc.OnStateChange == nil {
			bc.OnStateChange = e.reportTransition
		}
		e.breakers = resilience.NewBreakers(bc)
	}

	rc := config.Retry
	rc.Jitter = true
	if rc.Clock == nil {
		rc.Clock = config.Clock
	}
	rc.RetryIf = retryable
	e.retry = resilience.NewRetry(rc)

	if config.MaxConcurrent > 0 {
		e.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: config.MaxConcurrent,
			FailFast:      config.FailFast,
		})
	}
	return e, nil
}

// Limiter returns the executor's rate limiter.
func (e *Executor) Limiter() *resilience.AdaptiveRateLimiter {
	return e.limiter
}

// Breakers returns the executor's breaker registry.
func (e *Executor) Breakers() *resilience.Breakers {
	return e.breakers
}

// Bulkhead returns the concurrency limiter, or nil when unbounded.
func (e *Executor) Bulkhead() *resilience.Bulkhead {
	return e.bulkhead
}

// Execute sends req to the endpoint class.
func (e *Executor) Execute(ctx context.Context, req *Request, class string) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if e.bulkhead != nil {
		if err := e.bulkhead.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.bulkhead.Release()
	}

	meta := observe.CallMeta{
		Operation: "execute",
		Class:     class,
		Method:    req.Method,
		RequestID: uuid.NewString(),
	}

	var resp *Response
	err := e.tel.Observe(ctx, &meta, func(ctx context.Context) error {
		var err error
		resp, err = e.execute(ctx, req, class, &meta)
		return err
	})
	return resp, err
}

// call tracks the state of one Execute across attempts.
type call struct {
	req        *Request
	class      string
	cred       credential.Credential
	hasCred    bool
	refresh    bool
	refreshed  bool
	dispatched bool
	verdict    Verdict
}

func (e *Executor) execute(ctx context.Context, req *Request, class string, meta *observe.CallMeta) (*Response, error) {
	if err := e.breakers.Check(class); err != nil {
		return nil, err
	}

	c := &call{req: req, class: class}
	if err := e.loadCredential(ctx, c); err != nil {
		e.breakers.Abandon(class)
		return nil, err
	}

	var resp *Response
	err := e.retry.Execute(ctx, func(ctx context.Context, attempt int) error {
		meta.Attempts = attempt
		r, err := e.attempt(ctx, c, meta.RequestID, attempt)
		if err == nil {
			resp = r
		}
		return err
	})

	switch {
	case err == nil:
		e.breakers.RecordSuccess(class)
	case !c.dispatched || ctx.Err() != nil:
		e.breakers.Abandon(class)
	case c.verdict.Healthy && !c.verdict.Retryable:
		e.breakers.RecordSuccess(class)
	default:
		e.breakers.RecordFailure(class)
	}
	return resp, err
}

func (e *Executor) loadCredential(ctx context.Context, c *call) error {
	if c.req.CredentialKey == "" || e.config.Credentials == nil {
		return nil
	}
	cred, err := e.config.Credentials.Get(ctx, c.req.CredentialKey)
	if err != nil {
		return err
	}
	c.cred = cred
	c.hasCred = true
	c.refresh = false
	return nil
}

// attempt runs one rate-limit, sign, send and classify cycle.
func (e *Executor) attempt(ctx context.Context, c *call, requestID string, attempt int) (*Response, error) {
	permit, err := e.limiter.Acquire(ctx, c.class)
	if err != nil {
		return nil, err
	}
	if permit.Waited > 0 {
		e.tel.Metrics.RecordRateWait(ctx, c.class, string(permit.Reason), permit.Waited)
	}

	if c.refresh {
		if err := e.loadCredential(ctx, c); err != nil {
			return nil, err
		}
	}

	req := c.req.clone()
	req.Header.Set(e.config.RequestIDHeader, requestID)
	if c.hasCred && e.config.Signer != nil {
		if err := e.config.Signer.Sign(req, c.cred); err != nil {
			return nil, e.execError(c, req, nil, resilience.Observation{}, attempt, fmt.Errorf("client: sign: %w", err), false)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.config.AttemptTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, sendErr := e.config.Transport.Send(sendCtx, req)
	c.dispatched = true

	obs := e.config.Metadata.Parse(resp, e.config.Clock.Now())
	if resp != nil {
		e.limiter.UpdateFromResponse(c.class, obs)
		if obs.HasBudget {
			e.tel.Metrics.RecordRateRemaining(ctx, c.class, int64(obs.Remaining))
		}
	}

	c.verdict = e.config.Classifier.Classify(resp, obs, sendErr)
	if c.verdict.Success && sendErr == nil {
		if resp.Stream != nil {
			resp.Stream = &cancelOnClose{ReadCloser: resp.Stream, cancel: cancel}
		} else {
			cancel()
		}
		return resp, nil
	}
	cancel()
	if resp != nil && resp.Stream != nil {
		_ = resp.Stream.Close()
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if c.verdict.RefreshCredential && c.hasCred && !c.refreshed {
		c.refreshed = true
		c.refresh = true
		e.config.Credentials.Invalidate(c.req.CredentialKey)
	} else if c.verdict.RefreshCredential {
		c.verdict.Retryable = false
	}

	err = sendErr
	if err == nil {
		err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	execErr := e.execError(c, req, resp, obs, attempt, err, c.verdict.Retryable)
	if execErr.Retryable {
		e.log.Debug(ctx, "attempt failed",
			observe.Field{Key: "class", Value: c.class},
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "status", Value: execErr.StatusCode},
			observe.Field{Key: "error", Value: err},
		)
	}
	return nil, execErr
}

func (e *Executor) execError(c *call, req *Request, resp *Response, obs resilience.Observation, attempt int, err error, retry bool) *ExecError {
	execErr := &ExecError{
		Class:      c.class,
		Method:     req.Method,
		URL:        req.URL,
		Attempts:   attempt,
		Retryable:  retry,
		RetryAfter: obs.RetryAfter,
		Response:   resp,
		Err:        err,
	}
	if resp != nil {
		execErr.StatusCode = resp.StatusCode
	}
	return execErr
}

func (e *Executor) reportTransition(name string, from, to resilience.State) {
	ctx := context.Background()
	e.tel.Metrics.RecordCircuitTransition(ctx, name, from.String(), to.String())
	e.log.Warn(ctx, "circuit state changed",
		observe.Field{Key: "class", Value: name},
		observe.Field{Key: "from", Value: from.String()},
		observe.Field{Key: "to", Value: to.String()},
	)
}

func retryable(err error) bool {
	var execErr *ExecError
	return errors.As(err, &execErr) && execErr.Retryable
}

// cancelOnClose releases the attempt context when a streamed body is
// closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
