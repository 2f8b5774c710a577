package config

import (
	"github.com/jonwraymond/remoteops/cache"
	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/credential"
	"github.com/jonwraymond/remoteops/health"
	"github.com/jonwraymond/remoteops/observe"
	"github.com/jonwraymond/remoteops/operation"
	"github.com/jonwraymond/remoteops/resilience"
)

// ToBreakerConfig returns the per-class circuit breaker settings.
func (c *Config) ToBreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		FailureThreshold: c.Circuit.FailureThreshold,
		SuccessThreshold: c.Circuit.SuccessThreshold,
		ResetTimeout:     c.Circuit.ResetTimeout,
	}
}

// ToLimiterConfig returns the adaptive rate limiter settings.
func (c *Config) ToLimiterConfig() resilience.AdaptiveRateLimiterConfig {
	r := c.RateLimit
	return resilience.AdaptiveRateLimiterConfig{
		LowWaterRatio:        r.LowWaterRatio,
		MinInterval:          r.MinInterval,
		BackoffFactor:        r.BackoffFactor,
		SecondaryBase:        r.SecondaryBase,
		MaxSecondaryExponent: r.MaxSecondaryExponent,
		ExhaustedWait:        r.ExhaustedWait,
		MaxRate:              r.MaxRate,
		Burst:                r.Burst,
	}
}

// ToRetryConfig returns the retry settings. Jitter is always on.
func (c *Config) ToRetryConfig() resilience.RetryConfig {
	strategy, _ := resilience.ParseBackoffStrategy(c.Retry.Strategy)
	return resilience.RetryConfig{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   c.Retry.Multiplier,
		Strategy:     strategy,
		Jitter:       true,
	}
}

// ToCacheConfig returns the credential cache settings.
func (c *Config) ToCacheConfig() credential.CacheConfig {
	cc := c.Credentials
	return credential.CacheConfig{
		RefreshBuffer:     cc.RefreshBuffer,
		MaxEntries:        cc.MaxEntries,
		MaxRefreshRetries: cc.MaxRefreshRetries,
		RetryDelay:        cc.RetryDelay,
		RefreshCooldown:   cc.RefreshCooldown,
		RefreshTimeout:    cc.RefreshTimeout,
		DefaultTTL:        cc.DefaultTTL,
	}
}

// ToResponsePolicy returns the conditional response cache policy. A
// disabled cache yields cache.NoCachePolicy.
func (c *Config) ToResponsePolicy() cache.Policy {
	if !c.Cache.Enabled {
		return cache.NoCachePolicy()
	}
	return cache.Policy{
		DefaultTTL:   c.Cache.DefaultTTL,
		MaxTTL:       c.Cache.MaxTTL,
		MaxBodyBytes: c.Cache.MaxBodyBytes,
	}
}

// ToPollerConfig returns the operation poller settings.
func (c *Config) ToPollerConfig() operation.PollerConfig {
	p := c.Poller
	return operation.PollerConfig{
		BaseInterval:         p.BaseInterval,
		FastPhase:            p.FastPhase,
		GrowthFactor:         p.GrowthFactor,
		MaxInterval:          p.MaxInterval,
		MaxConsecutiveErrors: p.MaxConsecutiveErrors,
		DefaultTimeout:       p.DefaultTimeout,
		Class:                p.Class,
	}
}

// ToStreamerConfig returns the log streamer settings.
func (c *Config) ToStreamerConfig() operation.StreamerConfig {
	return operation.StreamerConfig{MaxConcurrentFetches: c.Streamer.MaxConcurrentFetches}
}

// ToAggregatorConfig returns the health aggregator settings.
func (c *Config) ToAggregatorConfig() health.AggregatorConfig {
	return health.AggregatorConfig{
		Timeout:     c.Health.Timeout,
		Parallel:    c.Health.Parallel,
		MaxParallel: c.Health.MaxParallel,
	}
}

// ToObserveConfig returns the telemetry settings.
func (c *Config) ToObserveConfig() observe.Config {
	o := c.Observe
	return observe.Config{
		ServiceName: o.ServiceName,
		Version:     o.Version,
		Tracing: observe.TracingConfig{
			Enabled:   o.Tracing.Enabled,
			Exporter:  o.Tracing.Exporter,
			SamplePct: o.Tracing.SamplePct,
			Endpoint:  o.Tracing.Endpoint,
			Insecure:  o.Tracing.Insecure,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.Metrics.Enabled,
			Exporter: o.Metrics.Exporter,
			Endpoint: o.Metrics.Endpoint,
			Insecure: o.Metrics.Insecure,
		},
		Logging: observe.LoggingConfig{
			Enabled: o.Logging.Enabled,
			Level:   o.Logging.Level,
		},
	}
}

// ToExecutorConfig returns the executor settings that do not depend on
// runtime components. Build fills in the transport, signer and credentials.
func (c *Config) ToExecutorConfig() client.ExecutorConfig {
	return client.ExecutorConfig{
		LimiterConfig:   c.ToLimiterConfig(),
		BreakerConfig:   c.ToBreakerConfig(),
		Retry:           c.ToRetryConfig(),
		MaxConcurrent:   c.Client.MaxConcurrent,
		FailFast:        c.Client.FailFast,
		AttemptTimeout:  c.Client.AttemptTimeout,
		RequestIDHeader: c.Client.RequestIDHeader,
		Classifier:      client.DefaultClassifier{ClientErrorsHealthy: c.Client.ClientErrorsHealthy},
	}
}

// ToHTTPTransportConfig returns the HTTP transport settings.
func (c *Config) ToHTTPTransportConfig() client.HTTPTransportConfig {
	return client.HTTPTransportConfig{
		BaseURL:      c.Client.BaseURL,
		UserAgent:    c.Client.UserAgent,
		MaxBodyBytes: c.Client.MaxBodyBytes,
	}
}
