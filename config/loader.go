package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REMOTEOPS"

// Load reads defaults, then the YAML file at path when path is non-empty,
// then REMOTEOPS_* variables. The result is validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(v)
}

// LoadReader is Load with the YAML document read from r.
func LoadReader(r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

// Default returns the built-in defaults with no file or environment
// applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("client.base_url", "")
	v.SetDefault("client.user_agent", "remoteops")
	v.SetDefault("client.attempt_timeout", "30s")
	v.SetDefault("client.max_body_bytes", 10<<20)
	v.SetDefault("client.max_concurrent", 0)
	v.SetDefault("client.fail_fast", false)
	v.SetDefault("client.request_id_header", "X-Request-Id")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", "100ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.strategy", "exponential")

	v.SetDefault("rate_limit.low_water_ratio", 0.1)
	v.SetDefault("rate_limit.min_interval", "100ms")
	v.SetDefault("rate_limit.backoff_factor", 2.0)
	v.SetDefault("rate_limit.secondary_base", "60s")
	v.SetDefault("rate_limit.max_secondary_exponent", 5)
	v.SetDefault("rate_limit.exhausted_wait", "60s")
	v.SetDefault("rate_limit.max_rate", 0.0)
	v.SetDefault("rate_limit.burst", 1)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.success_threshold", 3)
	v.SetDefault("circuit.reset_timeout", "30s")

	v.SetDefault("credentials.refresh_buffer", "5m")
	v.SetDefault("credentials.max_entries", 1024)
	v.SetDefault("credentials.max_refresh_retries", 3)
	v.SetDefault("credentials.retry_delay", "500ms")
	v.SetDefault("credentials.refresh_cooldown", "5s")
	v.SetDefault("credentials.refresh_timeout", "30s")
	v.SetDefault("credentials.default_ttl", "1h")

	v.SetDefault("auth.signer", "")
	v.SetDefault("auth.source", "")
	v.SetDefault("auth.secret.pattern", "")
	v.SetDefault("auth.secret.ttl", "0s")
	v.SetDefault("auth.app_token.issuer", "")
	v.SetDefault("auth.app_token.audience", "")
	v.SetDefault("auth.app_token.key_id", "")
	v.SetDefault("auth.app_token.method", "RS256")
	v.SetDefault("auth.app_token.ttl", "10m")
	v.SetDefault("auth.app_token.clock_skew", "60s")
	v.SetDefault("auth.app_token.subject_from_key", false)
	v.SetDefault("auth.app_token.private_key", "")
	v.SetDefault("auth.oauth2.token_endpoint", "")
	v.SetDefault("auth.oauth2.client_id", "")
	v.SetDefault("auth.oauth2.client_secret", "")
	v.SetDefault("auth.oauth2.client_auth_method", "client_secret_basic")
	v.SetDefault("auth.oauth2.grant_type", "client_credentials")
	v.SetDefault("auth.oauth2.refresh_token", "")
	v.SetDefault("auth.oauth2.scopes", []string{})
	v.SetDefault("auth.oauth2.timeout", "10s")

	v.SetDefault("secrets.strict", true)

	v.SetDefault("poller.base_interval", "10s")
	v.SetDefault("poller.fast_phase", "2m")
	v.SetDefault("poller.growth_factor", 2.0)
	v.SetDefault("poller.max_interval", "2m")
	v.SetDefault("poller.max_consecutive_errors", 5)
	v.SetDefault("poller.default_timeout", "30m")
	v.SetDefault("poller.class", "operation")

	v.SetDefault("streamer.max_concurrent_fetches", 4)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.default_ttl", "10m")
	v.SetDefault("cache.max_ttl", "1h")
	v.SetDefault("cache.max_body_bytes", 1<<20)

	v.SetDefault("health.timeout", "10s")
	v.SetDefault("health.parallel", true)
	v.SetDefault("health.max_parallel", 0)

	v.SetDefault("observe.service_name", "remoteops")
	v.SetDefault("observe.version", "")
	v.SetDefault("observe.tracing.enabled", false)
	v.SetDefault("observe.tracing.exporter", "none")
	v.SetDefault("observe.tracing.sample_pct", 1.0)
	v.SetDefault("observe.tracing.endpoint", "")
	v.SetDefault("observe.tracing.insecure", false)
	v.SetDefault("observe.metrics.enabled", false)
	v.SetDefault("observe.metrics.exporter", "none")
	v.SetDefault("observe.metrics.endpoint", "")
	v.SetDefault("observe.metrics.insecure", false)
	v.SetDefault("observe.logging.enabled", true)
	v.SetDefault("observe.logging.level", "info")
}
