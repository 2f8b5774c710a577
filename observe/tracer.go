package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// CallMeta describes one logical remote call for telemetry purposes.
type CallMeta struct {
	Operation string // execute|refresh|poll|stream
	Class     string // endpoint class, e.g. "sts" or "repo-api"
	Method    string // HTTP method, if any
	RequestID string
	Attempts  int
}

// SpanName returns the deterministic span name for this call.
// Format: remoteops.<operation>.<class> or remoteops.<operation>
func (m CallMeta) SpanName() string {
	if m.Class != "" {
		return "remoteops." + m.Operation + "." + m.Class
	}
	return "remoteops." + m.Operation
}

func (m CallMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("remoteops.operation", m.Operation),
	}
	if m.Class != "" {
		attrs = append(attrs, attribute.String("remoteops.class", m.Class))
	}
	if m.Method != "" {
		attrs = append(attrs, attribute.String("http.request.method", m.Method))
	}
	if m.RequestID != "" {
		attrs = append(attrs, attribute.String("remoteops.request_id", m.RequestID))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new client span for a remote call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, meta CallMeta, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, meta CallMeta, err error) {
	if meta.Attempts > 0 {
		span.SetAttributes(attribute.Int("remoteops.attempts", meta.Attempts))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, meta CallMeta, err error) {
	span.End()
}
