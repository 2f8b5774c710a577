package observe

import (
	"context"
	"time"
)

// Telemetry bundles the tracer, metrics and logger handed to each component.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: errors from observed functions are recorded and returned unchanged.
type Telemetry struct {
	Tracer  Tracer
	Metrics Metrics
	Logger  Logger
}

// NewTelemetry creates a Telemetry. Nil members are replaced by no-ops.
func NewTelemetry(tracer Tracer, metrics Metrics, logger Logger) *Telemetry {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Telemetry{
		Tracer:  tracer,
		Metrics: metrics,
		Logger:  OrNop(logger),
	}
}

// NopTelemetry returns a Telemetry that records nothing.
func NopTelemetry() *Telemetry {
	return NewTelemetry(nil, nil, nil)
}

// TelemetryFromObserver creates a Telemetry from an Observer.
func TelemetryFromObserver(obs Observer) (*Telemetry, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewTelemetry(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// OrNopTelemetry returns t, or a no-op Telemetry if t is nil.
func OrNopTelemetry(t *Telemetry) *Telemetry {
	if t == nil {
		return NopTelemetry()
	}
	return t
}

// Observe runs fn inside a span, then records call metrics and a log entry.
// fn may update meta (e.g. Attempts) through the pointer before returning.
func (t *Telemetry) Observe(ctx context.Context, meta *CallMeta, fn func(ctx context.Context) error) error {
	ctx, span := t.Tracer.StartSpan(ctx, *meta)
	start := time.Now()

	err := fn(ctx)

	duration := time.Since(start)
	t.Tracer.EndSpan(span, *meta, err)
	t.Metrics.RecordCall(ctx, *meta, duration, err)

	fields := []Field{
		{Key: "operation", Value: meta.Operation},
		{Key: "class", Value: meta.Class},
		{Key: "duration_ms", Value: float64(duration.Milliseconds())},
	}
	if meta.RequestID != "" {
		fields = append(fields, Field{Key: "request_id", Value: meta.RequestID})
	}
	if meta.Attempts > 0 {
		fields = append(fields, Field{Key: "attempts", Value: meta.Attempts})
	}

	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		t.Logger.Warn(ctx, "remote call failed", fields...)
	} else {
		t.Logger.Debug(ctx, "remote call completed", fields...)
	}

	return err
}
