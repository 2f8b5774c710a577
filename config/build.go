package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/jonwraymond/remoteops/auth"
	"github.com/jonwraymond/remoteops/cache"
	"github.com/jonwraymond/remoteops/client"
	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
	"github.com/jonwraymond/remoteops/health"
	"github.com/jonwraymond/remoteops/observe"
	"github.com/jonwraymond/remoteops/secret"
)

// BuildOptions supplies runtime dependencies that do not come from
// configuration.
type BuildOptions struct {
	// Telemetry is handed to every component. Default: built from the
	// observe section, which is shut down by Components.Close.
	Telemetry *observe.Telemetry

	// Clock supplies time. Default: the real clock.
	Clock clock.Clock

	// HTTPClient sends requests. Default: a plain *http.Client.
	HTTPClient *http.Client

	// Transport replaces the HTTP transport, e.g. to reach a fake server.
	Transport client.Transport
}

// Components are the runtime pieces built from a Config.
type Components struct {
	Executor *client.Executor

	// Credentials is nil when auth.source is empty.
	Credentials *credential.Cache

	Resolver *secret.Resolver

	// ResponseCache is nil unless cache.enabled is set.
	ResponseCache *cache.Transport

	Telemetry *observe.Telemetry

	clock    clock.Clock
	observer observe.Observer
}

// Build resolves secrets and assembles the executor and its dependencies.
// The caller must Close the result.
func (c *Config) Build(ctx context.Context, opts BuildOptions) (_ *Components, err error) {
	comps := &Components{clock: clock.OrReal(opts.Clock)}
	defer func() {
		if err != nil {
			_ = comps.Close()
		}
	}()

	comps.Telemetry = opts.Telemetry
	if comps.Telemetry == nil {
		obs, err := observe.NewObserver(ctx, c.ToObserveConfig())
		if err != nil {
			return nil, fmt.Errorf("build telemetry: %w", err)
		}
		comps.observer = obs
		if comps.Telemetry, err = observe.TelemetryFromObserver(obs); err != nil {
			return nil, fmt.Errorf("build telemetry: %w", err)
		}
	}

	if comps.Resolver, err = c.buildResolver(); err != nil {
		return nil, err
	}

	base := opts.Transport
	if base == nil {
		hc := c.ToHTTPTransportConfig()
		hc.Client = opts.HTTPClient
		base = client.NewHTTPTransport(hc)
	}

	transport := base
	if c.Cache.Enabled {
		policy := c.ToResponsePolicy()
		comps.ResponseCache = cache.NewTransport(base, cache.TransportConfig{
			Cache:  cache.NewMemoryCache(cache.WithClock(comps.clock), cache.WithMaxEntries(c.Cache.MaxEntries)),
			Policy: &policy,
			Logger: comps.Telemetry.Logger,
		})
		transport = comps.ResponseCache
	}

	ec := c.ToExecutorConfig()
	ec.Transport = transport
	ec.Clock = comps.clock
	ec.Telemetry = comps.Telemetry

	if c.Auth.Source != "" {
		src, err := c.buildSource(ctx, comps.Resolver, base, comps.clock)
		if err != nil {
			return nil, err
		}
		cc := c.ToCacheConfig()
		cc.Clock = comps.clock
		cc.Telemetry = comps.Telemetry
		comps.Credentials = credential.NewCache(src, cc)
		ec.Credentials = comps.Credentials

		if ec.Signer, err = auth.DefaultRegistry.CreateSigner(c.Auth.Signer, c.Auth.SignerOptions); err != nil {
			return nil, fmt.Errorf("build signer: %w", err)
		}
	}

	if comps.Executor, err = client.NewExecutor(ec); err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	return comps, nil
}

// RegisterHealth registers circuit, rate-limit and credential checkers.
func (comps *Components) RegisterHealth(agg *health.Aggregator) {
	breakers := health.NewCircuitChecker(comps.Executor.Breakers(), health.CircuitCheckerConfig{})
	agg.Register(breakers.Name(), breakers)

	limits := health.NewRateLimitChecker(comps.Executor.Limiter(), health.RateLimitCheckerConfig{Clock: comps.clock})
	agg.Register(limits.Name(), limits)

	if comps.Credentials != nil {
		creds := health.NewCredentialChecker(comps.Credentials)
		agg.Register(creds.Name(), creds)
	}
}

// Close stops background refreshes, closes secret providers and flushes
// telemetry built by Build.
func (comps *Components) Close() error {
	var errs []error
	if comps.Credentials != nil {
		errs = append(errs, comps.Credentials.Close())
	}
	if comps.Resolver != nil {
		errs = append(errs, comps.Resolver.Close())
	}
	if comps.observer != nil {
		errs = append(errs, comps.observer.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func (c *Config) buildResolver() (*secret.Resolver, error) {
	providers := c.Secrets.Providers
	if len(providers) == 0 {
		providers = map[string]map[string]any{"env": nil, "file": nil}
	}
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	resolver := secret.NewResolver(c.Secrets.Strict)
	for _, name := range names {
		p, err := secret.DefaultRegistry.Create(name, providers[name])
		if err != nil {
			_ = resolver.Close()
			return nil, fmt.Errorf("build secret provider: %w", err)
		}
		resolver.Register(p)
	}
	return resolver, nil
}

func (c *Config) buildSource(ctx context.Context, resolver *secret.Resolver, transport client.Transport, clk clock.Clock) (credential.Source, error) {
	switch c.Auth.Source {
	case "secret":
		s := c.Auth.Secret
		return secret.NewSource(resolver, secret.SourceConfig{
			Refs:    s.Refs,
			Pattern: s.Pattern,
			TTL:     s.TTL,
			Clock:   clk,
		}), nil

	case "app_token":
		a := c.Auth.AppToken
		material, err := resolver.ResolveValue(ctx, a.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("resolve auth.app_token.private_key: %w", err)
		}
		var keys auth.KeyProvider
		if a.Method == "HS256" {
			keys = auth.NewStaticKeyProvider([]byte(material))
		} else if keys, err = auth.NewPEMKeyProvider([]byte(material)); err != nil {
			return nil, fmt.Errorf("auth.app_token.private_key: %w", err)
		}
		return auth.NewAppTokenSource(auth.AppTokenConfig{
			Issuer:         a.Issuer,
			Audience:       a.Audience,
			KeyID:          a.KeyID,
			Method:         a.Method,
			TTL:            a.TTL,
			ClockSkew:      a.ClockSkew,
			SubjectFromKey: a.SubjectFromKey,
			Clock:          clk,
		}, keys)

	case "oauth2":
		o := c.Auth.OAuth2
		clientSecret, err := resolver.ResolveValue(ctx, o.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("resolve auth.oauth2.client_secret: %w", err)
		}
		refreshToken, err := resolver.ResolveValue(ctx, o.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("resolve auth.oauth2.refresh_token: %w", err)
		}
		return auth.NewOAuth2Source(auth.OAuth2Config{
			TokenEndpoint:    o.TokenEndpoint,
			ClientID:         o.ClientID,
			ClientSecret:     clientSecret,
			ClientAuthMethod: o.ClientAuthMethod,
			GrantType:        o.GrantType,
			RefreshToken:     refreshToken,
			Scopes:           o.Scopes,
			Timeout:          o.Timeout,
			Transport:        transport,
			Clock:            clk,
		})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, c.Auth.Source)
}
