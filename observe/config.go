package observe

import "fmt"

// Config selects what an Observer exports. Disabled subsystems get no-op
// implementations and are not validated.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool
	// Exporter is one of otlp, jaeger, stdout or none.
	Exporter string
	// SamplePct is the share of root spans kept, in [0, 1].
	SamplePct float64
	// Endpoint overrides the OTLP endpoint. Empty falls back to OTEL_*.
	Endpoint string
	Insecure bool
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled bool
	// Exporter is one of otlp, prometheus, stdout or none.
	Exporter string
	Endpoint string
	Insecure bool
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Enabled bool
	Level   string
}

// An empty exporter or level is accepted and means the default.
var (
	tracingExporters = set("otlp", "jaeger", "stdout", "none", "")
	metricsExporters = set("otlp", "prometheus", "stdout", "none", "")
	logLevels        = set("debug", "info", "warn", "error", "")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return ErrMissingServiceName
	case c.Tracing.Enabled && !tracingExporters[c.Tracing.Exporter]:
		return fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter)
	case c.Tracing.Enabled && (c.Tracing.SamplePct < 0 || c.Tracing.SamplePct > 1):
		return fmt.Errorf("%w: got %g", ErrInvalidSamplePct, c.Tracing.SamplePct)
	case c.Metrics.Enabled && !metricsExporters[c.Metrics.Exporter]:
		return fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter)
	case c.Logging.Enabled && !logLevels[c.Logging.Level]:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	return nil
}
