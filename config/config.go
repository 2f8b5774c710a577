package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/remoteops/auth"
	"github.com/jonwraymond/remoteops/resilience"
)

// Config is the complete client configuration.
type Config struct {
	Client      ClientConfig      `mapstructure:"client"`
	Retry       RetryConfig       `mapstructure:"retry"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Circuit     CircuitConfig     `mapstructure:"circuit"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Poller      PollerConfig      `mapstructure:"poller"`
	Streamer    StreamerConfig    `mapstructure:"streamer"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Health      HealthConfig      `mapstructure:"health"`
	Observe     ObserveConfig     `mapstructure:"observe"`
}

// ClientConfig contains transport and executor settings.
type ClientConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	UserAgent       string        `mapstructure:"user_agent"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	FailFast        bool          `mapstructure:"fail_fast"`
	RequestIDHeader string        `mapstructure:"request_id_header"`

	// ClientErrorsHealthy keeps non-retryable 4xx responses from counting
	// against the circuit.
	ClientErrorsHealthy bool `mapstructure:"client_errors_healthy"`
}

// RetryConfig contains attempt and backoff settings.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Strategy     string        `mapstructure:"strategy"` // exponential|linear|constant
}

// RateLimitConfig contains adaptive limiter settings.
type RateLimitConfig struct {
	LowWaterRatio        float64       `mapstructure:"low_water_ratio"`
	MinInterval          time.Duration `mapstructure:"min_interval"`
	BackoffFactor        float64       `mapstructure:"backoff_factor"`
	SecondaryBase        time.Duration `mapstructure:"secondary_base"`
	MaxSecondaryExponent uint32        `mapstructure:"max_secondary_exponent"`
	ExhaustedWait        time.Duration `mapstructure:"exhausted_wait"`
	MaxRate              float64       `mapstructure:"max_rate"`
	Burst                int           `mapstructure:"burst"`
}

// CircuitConfig contains per-class breaker settings.
type CircuitConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// CredentialsConfig contains credential cache settings.
type CredentialsConfig struct {
	RefreshBuffer     time.Duration `mapstructure:"refresh_buffer"`
	MaxEntries        int           `mapstructure:"max_entries"`
	MaxRefreshRetries int           `mapstructure:"max_refresh_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RefreshCooldown   time.Duration `mapstructure:"refresh_cooldown"`
	RefreshTimeout    time.Duration `mapstructure:"refresh_timeout"`
	DefaultTTL        time.Duration `mapstructure:"default_ttl"`
}

// AuthConfig selects how requests are signed and where credentials come
// from.
type AuthConfig struct {
	// Signer names a signer in auth.DefaultRegistry. Empty sends requests
	// unsigned.
	Signer        string         `mapstructure:"signer"`
	SignerOptions map[string]any `mapstructure:"signer_options"`

	// Source is one of "secret", "app_token" or "oauth2". Empty disables
	// credentials.
	Source   string             `mapstructure:"source"`
	Secret   SecretSourceConfig `mapstructure:"secret"`
	AppToken AppTokenConfig     `mapstructure:"app_token"`
	OAuth2   OAuth2Config       `mapstructure:"oauth2"`
}

// SecretSourceConfig reads credentials through secret providers.
type SecretSourceConfig struct {
	Refs    map[string]string `mapstructure:"refs"`
	Pattern string            `mapstructure:"pattern"`
	TTL     time.Duration     `mapstructure:"ttl"`
}

// AppTokenConfig mints signed JWTs. PrivateKey is a PEM block for RS256 or
// the shared secret for HS256, usually given as a secretref.
type AppTokenConfig struct {
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	KeyID          string        `mapstructure:"key_id"`
	Method         string        `mapstructure:"method"`
	TTL            time.Duration `mapstructure:"ttl"`
	ClockSkew      time.Duration `mapstructure:"clock_skew"`
	SubjectFromKey bool          `mapstructure:"subject_from_key"`
	PrivateKey     string        `mapstructure:"private_key"`
}

// OAuth2Config exchanges client credentials or a refresh token.
type OAuth2Config struct {
	TokenEndpoint    string        `mapstructure:"token_endpoint"`
	ClientID         string        `mapstructure:"client_id"`
	ClientSecret     string        `mapstructure:"client_secret"`
	ClientAuthMethod string        `mapstructure:"client_auth_method"`
	GrantType        string        `mapstructure:"grant_type"`
	RefreshToken     string        `mapstructure:"refresh_token"`
	Scopes           []string      `mapstructure:"scopes"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// SecretsConfig configures secret providers by registry name.
type SecretsConfig struct {
	// Strict rejects references that resolve to an empty value.
	Strict    bool                      `mapstructure:"strict"`
	Providers map[string]map[string]any `mapstructure:"providers"`
}

// PollerConfig contains long-running operation polling settings.
type PollerConfig struct {
	BaseInterval         time.Duration `mapstructure:"base_interval"`
	FastPhase            time.Duration `mapstructure:"fast_phase"`
	GrowthFactor         float64       `mapstructure:"growth_factor"`
	MaxInterval          time.Duration `mapstructure:"max_interval"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	DefaultTimeout       time.Duration `mapstructure:"default_timeout"`
	Class                string        `mapstructure:"class"`
}

// StreamerConfig contains log streaming settings.
type StreamerConfig struct {
	MaxConcurrentFetches int `mapstructure:"max_concurrent_fetches"`
}

// CacheConfig contains conditional response cache settings.
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxEntries   int           `mapstructure:"max_entries"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	MaxTTL       time.Duration `mapstructure:"max_ttl"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// HealthConfig contains health aggregation settings.
type HealthConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Parallel    bool          `mapstructure:"parallel"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// ObserveConfig contains telemetry settings.
type ObserveConfig struct {
	ServiceName string        `mapstructure:"service_name"`
	Version     string        `mapstructure:"version"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// TracingConfig mirrors observe.TracingConfig.
type TracingConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Exporter  string  `mapstructure:"exporter"`
	SamplePct float64 `mapstructure:"sample_pct"`
	Endpoint  string  `mapstructure:"endpoint"`
	Insecure  bool    `mapstructure:"insecure"`
}

// MetricsConfig mirrors observe.MetricsConfig.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// LoggingConfig mirrors observe.LoggingConfig.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

var validSources = []string{"", "secret", "app_token", "oauth2"}

// Validate reports every invalid setting, each wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Retry.MaxAttempts < 0 {
		fail("retry.max_attempts must not be negative")
	}
	if _, ok := resilience.ParseBackoffStrategy(c.Retry.Strategy); !ok {
		fail("retry.strategy %q", c.Retry.Strategy)
	}
	if c.RateLimit.LowWaterRatio < 0 || c.RateLimit.LowWaterRatio >= 1 {
		fail("rate_limit.low_water_ratio must be in [0, 1)")
	}
	if c.RateLimit.MaxRate < 0 || c.RateLimit.Burst < 0 {
		fail("rate_limit.max_rate and rate_limit.burst must not be negative")
	}
	if c.Circuit.FailureThreshold < 0 || c.Circuit.SuccessThreshold < 0 {
		fail("circuit thresholds must not be negative")
	}
	if c.Credentials.MaxEntries < 0 || c.Cache.MaxEntries < 0 {
		fail("max_entries must not be negative")
	}
	if c.Poller.GrowthFactor != 0 && c.Poller.GrowthFactor < 1 {
		fail("poller.growth_factor must be at least 1")
	}
	if c.Poller.MaxInterval > 0 && c.Poller.MaxInterval < c.Poller.BaseInterval {
		fail("poller.max_interval is below poller.base_interval")
	}
	if c.Cache.MaxTTL > 0 && c.Cache.MaxTTL < c.Cache.DefaultTTL {
		fail("cache.max_ttl is below cache.default_ttl")
	}

	if c.Auth.Signer != "" && !slices.Contains(auth.DefaultRegistry.ListSigners(), c.Auth.Signer) {
		fail("auth.signer %q is not registered", c.Auth.Signer)
	}
	if !slices.Contains(validSources, c.Auth.Source) {
		errs = append(errs, fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrUnknownSource, c.Auth.Source))
	}
	if (c.Auth.Signer == "") != (c.Auth.Source == "") {
		fail("auth.signer and auth.source must be set together")
	}
	switch c.Auth.Source {
	case "app_token":
		if c.Auth.AppToken.Issuer == "" || c.Auth.AppToken.PrivateKey == "" {
			fail("auth.app_token needs issuer and private_key")
		}
	case "oauth2":
		if c.Auth.OAuth2.TokenEndpoint == "" {
			fail("auth.oauth2.token_endpoint is required")
		}
	}

	if c.observeEnabled() {
		oc := c.ToObserveConfig()
		if err := oc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) observeEnabled() bool {
	return c.Observe.Tracing.Enabled || c.Observe.Metrics.Enabled || c.Observe.Logging.Enabled
}
