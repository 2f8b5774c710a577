package secret

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/credential"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	// Refs maps credential keys to values to resolve, e.g.
	// "ci" -> "secretref:file:/run/secrets/ci_token".
	Refs map[string]string

	// Pattern resolves keys missing from Refs after replacing "{key}", e.g.
	// "secretref:env:TOKEN_{key}". Empty means unknown keys fail.
	Pattern string

	// TTL sets the credential lifetime. Zero leaves expiry to the token's
	// exp claim or the cache default.
	TTL time.Duration

	// Clock stamps the issue time. Default: the real clock.
	Clock clock.Clock
}

// Source is a credential.Source over a Resolver. Every Fetch re-resolves
// the reference, so rotated files or variables reach the cache on its next
// refresh.
type Source struct {
	resolver *Resolver
	config   SourceConfig
}

// NewSource creates a resolver-backed credential source.
func NewSource(resolver *Resolver, config SourceConfig) *Source {
	config.Clock = clock.OrReal(config.Clock)
	return &Source{resolver: resolver, config: config}
}

// Fetch resolves the reference for key.
func (s *Source) Fetch(ctx context.Context, key string) (credential.Raw, error) {
	ref, ok := s.config.Refs[key]
	if !ok {
		if s.config.Pattern == "" {
			return credential.Raw{}, fmt.Errorf("%w: %w: %q", credential.ErrRejected, ErrUnknownKey, key)
		}
		ref = strings.ReplaceAll(s.config.Pattern, "{key}", key)
	}

	value, err := s.resolver.ResolveValue(ctx, ref)
	if err != nil {
		return credential.Raw{}, err
	}

	now := s.config.Clock.Now()
	raw := credential.Raw{Secret: []byte(value), IssuedAt: now}
	if s.config.TTL > 0 {
		raw.ExpiresAt = now.Add(s.config.TTL)
	}
	return raw, nil
}

var _ credential.Source = (*Source)(nil)
