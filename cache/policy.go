package cache

import "time"

// Policy decides what a Transport stores and for how long. The TTL bounds
// how long validators are kept, not how long an answer may be reused
// without asking: every request still reaches the origin.
type Policy struct {
	// DefaultTTL applies when a response has no max-age. Zero disables
	// the Transport.
	DefaultTTL time.Duration

	// MaxTTL caps max-age derived TTLs. Zero means uncapped.
	MaxTTL time.Duration

	// MaxBodyBytes skips larger bodies. Zero means unlimited.
	MaxBodyBytes int
}

// DefaultPolicy keeps validators 10 minutes, at most an hour, for bodies up
// to 1 MiB.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: 10 * time.Minute, MaxTTL: time.Hour, MaxBodyBytes: 1 << 20}
}

// NoCachePolicy turns the Transport into a pass-through.
func NoCachePolicy() Policy { return Policy{} }

// ShouldCache reports whether the policy stores anything.
func (p Policy) ShouldCache() bool { return p.DefaultTTL > 0 }

// EffectiveTTL returns maxAge clamped to MaxTTL, or DefaultTTL when maxAge
// is not positive.
func (p Policy) EffectiveTTL(maxAge time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if maxAge > 0 {
		ttl = maxAge
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return ttl
}

func (p Policy) fits(n int) bool {
	return p.MaxBodyBytes <= 0 || n <= p.MaxBodyBytes
}
