package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records client-core telemetry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic and must return quickly.
type Metrics interface {
	// RecordCall records one logical call with its duration and outcome.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordRateWait records time spent waiting for a rate-limit permit.
	RecordRateWait(ctx context.Context, class, reason string, waited time.Duration)

	// RecordRateRemaining records the server-reported remaining budget.
	RecordRateRemaining(ctx context.Context, class string, remaining int64)

	// RecordCircuitTransition records a circuit breaker state change.
	RecordCircuitTransition(ctx context.Context, class, from, to string)

	// RecordRefresh records a credential refresh outcome (success|failure).
	RecordRefresh(ctx context.Context, outcome string, duration time.Duration)

	// RecordPoll records an operation poll outcome.
	RecordPoll(ctx context.Context, outcome string)
}

type metricsImpl struct {
	callCount     metric.Int64Counter
	callErrors    metric.Int64Counter
	callDuration  metric.Float64Histogram
	rateWait      metric.Float64Histogram
	rateRemaining metric.Int64Gauge
	circuitChange metric.Int64Counter
	refreshCount  metric.Int64Counter
	refreshTime   metric.Float64Histogram
	pollCount     metric.Int64Counter
}

// NewMetrics creates the client-core instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.callCount, err = meter.Int64Counter("remoteops.call.total",
		metric.WithDescription("Total number of logical remote calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.callErrors, err = meter.Int64Counter("remoteops.call.errors",
		metric.WithDescription("Total number of failed logical remote calls"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.callDuration, err = meter.Float64Histogram("remoteops.call.duration_ms",
		metric.WithDescription("Logical call duration including retries, in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.rateWait, err = meter.Float64Histogram("remoteops.ratelimit.wait_ms",
		metric.WithDescription("Time spent waiting for a rate-limit permit"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.rateRemaining, err = meter.Int64Gauge("remoteops.ratelimit.remaining",
		metric.WithDescription("Server-reported remaining request budget"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.circuitChange, err = meter.Int64Counter("remoteops.circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}
	if m.refreshCount, err = meter.Int64Counter("remoteops.credential.refreshes",
		metric.WithDescription("Credential refresh attempts by outcome"),
		metric.WithUnit("{refresh}"),
	); err != nil {
		return nil, err
	}
	if m.refreshTime, err = meter.Float64Histogram("remoteops.credential.refresh_ms",
		metric.WithDescription("Credential refresh duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.pollCount, err = meter.Int64Counter("remoteops.operation.polls",
		metric.WithDescription("Operation status polls by outcome"),
		metric.WithUnit("{poll}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("operation", meta.Operation),
		attribute.String("class", meta.Class),
	)

	m.callCount.Add(ctx, 1, opt)
	if err != nil {
		m.callErrors.Add(ctx, 1, opt)
	}
	m.callDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordRateWait(ctx context.Context, class, reason string, waited time.Duration) {
	m.rateWait.Record(ctx, float64(waited.Milliseconds()), metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("reason", reason),
	))
}

func (m *metricsImpl) RecordRateRemaining(ctx context.Context, class string, remaining int64) {
	m.rateRemaining.Record(ctx, remaining, metric.WithAttributes(attribute.String("class", class)))
}

func (m *metricsImpl) RecordCircuitTransition(ctx context.Context, class, from, to string) {
	m.circuitChange.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *metricsImpl) RecordRefresh(ctx context.Context, outcome string, duration time.Duration) {
	opt := metric.WithAttributes(attribute.String("outcome", outcome))
	m.refreshCount.Add(ctx, 1, opt)
	m.refreshTime.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordPoll(ctx context.Context, outcome string) {
	m.pollCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error)      {}
func (noopMetrics) RecordRateWait(context.Context, string, string, time.Duration)   {}
func (noopMetrics) RecordRateRemaining(context.Context, string, int64)              {}
func (noopMetrics) RecordCircuitTransition(context.Context, string, string, string) {}
func (noopMetrics) RecordRefresh(context.Context, string, time.Duration)            {}
func (noopMetrics) RecordPoll(context.Context, string)                              {}
