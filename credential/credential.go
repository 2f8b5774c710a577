package credential

import (
	"context"
	"fmt"
	"time"
)

// Credential is a value snapshot of a cached secret. Callers own the copy
// they receive; mutating Secret never affects the cache.
type Credential struct {
	Key       string
	Secret    []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	RefreshAt time.Time
}

// Clone returns a deep copy of c.
func (c Credential) Clone() Credential {
	if c.Secret != nil {
		c.Secret = append([]byte(nil), c.Secret...)
	}
	return c
}

// Expired reports whether c is unusable at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Stale reports whether c is inside its refresh window at now.
func (c Credential) Stale(now time.Time) bool {
	return !now.Before(c.RefreshAt)
}

// String omits the secret.
func (c Credential) String() string {
	return fmt.Sprintf("credential(%s, expires %s)", c.Key, c.ExpiresAt.Format(time.RFC3339))
}

// Raw is what a Source returns. A zero IssuedAt means "now". A zero
// ExpiresAt is derived from the secret's JWT exp claim when possible, else
// from CacheConfig.DefaultTTL.
type Raw struct {
	Secret    []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Source performs the vendor call that mints a credential for key, e.g. an
// STS AssumeRole or an OAuth refresh.
//
// Contract:
//   - Concurrency: Fetch may be called concurrently for different keys, never
//     concurrently for the same key from one Cache.
//   - Context: Fetch must honor cancellation.
type Source interface {
	Fetch(ctx context.Context, key string) (Raw, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, key string) (Raw, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, key string) (Raw, error) {
	return f(ctx, key)
}
