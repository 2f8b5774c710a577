// Package observe provides the telemetry primitives used by the client core:
// a JSON structured logger with secret redaction, OpenTelemetry spans and
// metrics for remote calls, and exporter wiring.
//
// Instrumentation is fire-and-forget. Nothing in this package sits on the
// correctness path of a call, and every component accepts a nil or no-op
// implementation.
package observe
