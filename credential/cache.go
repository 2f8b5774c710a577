package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/remoteops/clock"
	"github.com/jonwraymond/remoteops/observe"
	"github.com/jonwraymond/remoteops/resilience"
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	// RefreshBuffer is subtracted from ExpiresAt to get RefreshAt.
	// Default: 5 minutes
	RefreshBuffer time.Duration

	// MaxEntries bounds the number of cached keys (LRU).
	// Default: 1024
	MaxEntries int

	// MaxRefreshRetries is the number of fetch attempts for a synchronous
	// refresh. Background refreshes make one attempt per cooldown period.
	// Default: 3
	MaxRefreshRetries int

	// RetryDelay is the jittered delay between synchronous attempts.
	// Default: 500ms
	RetryDelay time.Duration

	// RefreshCooldown gates the next background refresh after a failed one.
	// Default: 5s
	RefreshCooldown time.Duration

	// RefreshTimeout bounds one refresh (all attempts). Refreshes run on a
	// context detached from any single caller.
	// Default: 30s
	RefreshTimeout time.Duration

	// DefaultTTL is used when a Source reports no expiry and the secret is
	// not a JWT with an exp claim. Zero makes such secrets an error.
	DefaultTTL time.Duration

	// Clock supplies time. Default: wall clock.
	Clock clock.Clock

	// Telemetry receives refresh spans, metrics and logs. Default: no-op.
	Telemetry *observe.Telemetry
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.RefreshBuffer <= 0 {
		c.RefreshBuffer = 5 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1024
	}
	if c.MaxRefreshRetries <= 0 {
		c.MaxRefreshRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = 5 * time.Second
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 30 * time.Second
	}
	c.Clock = clock.OrReal(c.Clock)
	c.Telemetry = observe.OrNopTelemetry(c.Telemetry)
	return c
}

// Stats contains cache counters.
type Stats struct {
	Entries         int
	Hits            int64
	StaleHits       int64
	Misses          int64
	Refreshes       int64
	RefreshFailures int64
	Evictions       int64
}

// flight marks a refresh in progress for one key. It is registered before
// the refresh enters the singleflight group so Invalidate can reach it.
type flight struct {
	startedAt   time.Time
	invalidated bool
	running     bool
}

// Cache is a keyed store of short-lived credentials with refresh-ahead and
// single-flight refresh.
//
// Contract:
//   - Concurrency: safe for concurrent use. Callers for the same key share one
//     refresh; other keys proceed independently.
//   - Ownership: Get returns deep copies.
type Cache struct {
	source Source
	config CacheConfig
	log    observe.Logger

	syncRetry  *resilience.Retry
	asyncRetry *resilience.Retry

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group
	wg     sync.WaitGroup

	mu       sync.Mutex
	entries  *lru
	flights  map[string]*flight
	cooldown map[string]time.Time
	closed   bool

	hits      atomic.Int64
	staleHits atomic.Int64
	misses    atomic.Int64
	refreshes atomic.Int64
	failures  atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache backed by source.
func NewCache(source Source, config CacheConfig) *Cache {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	retryIf := func(err error) bool {
		return !permanent(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	return &Cache{
		source: source,
		config: config,
		log:    config.Telemetry.Logger.With(observe.Field{Key: "component", Value: "credential"}),
		syncRetry: resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  config.MaxRefreshRetries,
			InitialDelay: config.RetryDelay,
			Strategy:     resilience.BackoffConstant,
			Jitter:       true,
			RetryIf:      retryIf,
			Clock:        config.Clock,
		}),
		asyncRetry: resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: 1,
			Clock:       config.Clock,
		}),
		ctx:      ctx,
		cancel:   cancel,
		entries:  newLRU(),
		flights:  make(map[string]*flight),
		cooldown: make(map[string]time.Time),
	}
}

// Get returns a valid credential for key.
//
// Fresh and stale entries return without blocking; a stale entry also starts
// at most one background refresh. Absent and expired entries block on a
// synchronous refresh shared with every other caller for the key. Get never
// returns a credential that is expired at the time of return.
func (c *Cache) Get(ctx context.Context, key string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}
	now := c.config.Clock.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Credential{}, ErrClosed
	}

	cred, ok := c.entries.get(key)
	if !ok || cred.Expired(now) {
		c.mu.Unlock()
		c.misses.Add(1)
		return c.refreshSync(ctx, key)
	}

	if !cred.Stale(now) {
		c.mu.Unlock()
		c.hits.Add(1)
		return cred.Clone(), nil
	}

	if cred.RefreshAt.After(cred.IssuedAt) {
		c.startAsyncLocked(key, now)
		c.mu.Unlock()
		c.staleHits.Add(1)
		return cred.Clone(), nil
	}
	c.mu.Unlock()

	// The credential never had a fresh window (TTL <= RefreshBuffer), so
	// refresh in line and fall back to the cached copy while it is valid.
	c.staleHits.Add(1)
	fresh, err := c.refreshSync(ctx, key)
	if err == nil {
		return fresh, nil
	}
	if ctx.Err() != nil || cred.Expired(c.config.Clock.Now()) {
		return Credential{}, err
	}
	return cred.Clone(), nil
}

// Invalidate drops the entry for key. A refresh already in flight still
// answers its waiters but does not repopulate the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.remove(key)
	delete(c.cooldown, key)
	if f, ok := c.flights[key]; ok {
		f.invalidated = true
	}
}

// Put primes the cache with a credential obtained out of band.
func (c *Cache) Put(key string, raw Raw) error {
	if len(raw.Secret) == 0 {
		return ErrEmptySecret
	}
	cred, err := c.build(key, raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.storeLocked(cred)
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:         c.Len(),
		Hits:            c.hits.Load(),
		StaleHits:       c.staleHits.Load(),
		Misses:          c.misses.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.failures.Load(),
		Evictions:       c.evictions.Load(),
	}
}

// Close cancels in-flight refreshes and waits for them to return.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Cache) refreshSync(ctx context.Context, key string) (Credential, error) {
	c.mu.Lock()
	f := c.flightLocked(key, c.config.Clock.Now())
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(key, f, c.syncRetry)
	})

	// A flight that joined someone else's call never runs; drop it.
	defer func() {
		c.mu.Lock()
		if c.flights[key] == f && !f.running {
			delete(c.flights, key)
		}
		c.mu.Unlock()
	}()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		cred := res.Val.(Credential)
		if cred.Expired(c.config.Clock.Now()) {
			return Credential{}, &Error{Key: key, Attempts: 1, Err: ErrExpired}
		}
		return cred.Clone(), nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

// flightLocked returns the registered flight for key, registering a new
// one when none exists.
func (c *Cache) flightLocked(key string, now time.Time) *flight {
	f, ok := c.flights[key]
	if !ok {
		f = &flight{startedAt: now}
		c.flights[key] = f
	}
	return f
}

func (c *Cache) startAsyncLocked(key string, now time.Time) {
	if _, busy := c.flights[key]; busy {
		return
	}
	if until, ok := c.cooldown[key]; ok && now.Before(until) {
		return
	}

	f := c.flightLocked(key, now)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _, _ = c.group.Do(key, func() (any, error) {
			return c.refresh(key, f, c.asyncRetry)
		})
	}()
}

// refresh runs inside the singleflight group for key, so at most one
// refresh per key executes at a time. f is the flight the caller
// registered; if another refresh already finished it, a valid cached
// entry is returned without fetching again.
func (c *Cache) refresh(key string, f *flight, retry *resilience.Retry) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.flights[key] != f {
		now := c.config.Clock.Now()
		if cred, ok := c.entries.peek(key); ok && !cred.Expired(now) {
			c.mu.Unlock()
			return cred, nil
		}
		f = c.flightLocked(key, now)
	}
	f.running = true
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.config.RefreshTimeout)
	defer cancel()

	tel := c.config.Telemetry
	meta := observe.CallMeta{Operation: "refresh", Class: "credential"}
	ctx, span := tel.Tracer.StartSpan(ctx, meta)

	var cred Credential
	err := retry.Execute(ctx, func(ctx context.Context, attempt int) error {
		meta.Attempts = attempt
		var err error
		cred, err = c.fetch(ctx, key)
		return err
	})

	now := c.config.Clock.Now()
	elapsed := now.Sub(f.startedAt)

	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	if err == nil {
		delete(c.cooldown, key)
		if !f.invalidated && !c.closed {
			c.storeLocked(cred)
		}
	} else {
		c.cooldown[key] = now.Add(c.config.RefreshCooldown)
		if old, ok := c.entries.peek(key); ok && old.Expired(now) {
			c.entries.remove(key)
		}
	}
	c.mu.Unlock()

	tel.Tracer.EndSpan(span, meta, err)
	if err != nil {
		c.failures.Add(1)
		tel.Metrics.RecordRefresh(ctx, "failure", elapsed)
		c.log.Warn(ctx, "credential refresh failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "attempts", Value: meta.Attempts},
			observe.Field{Key: "error", Value: err},
		)
		return nil, &Error{Key: key, Attempts: meta.Attempts, Err: err}
	}

	c.refreshes.Add(1)
	tel.Metrics.RecordRefresh(ctx, "success", elapsed)
	c.log.Debug(ctx, "credential refreshed",
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "expires_at", Value: cred.ExpiresAt},
	)
	return cred, nil
}

func (c *Cache) fetch(ctx context.Context, key string) (Credential, error) {
	raw, err := c.source.Fetch(ctx, key)
	if err != nil {
		return Credential{}, err
	}
	if len(raw.Secret) == 0 {
		return Credential{}, ErrEmptySecret
	}
	return c.build(key, raw)
}

func (c *Cache) build(key string, raw Raw) (Credential, error) {
	now := c.config.Clock.Now()
	issued, expires := raw.IssuedAt, raw.ExpiresAt

	if expires.IsZero() {
		iat, exp, err := ExpiryFromJWT(string(raw.Secret))
		switch {
		case err == nil:
			expires = exp
			if issued.IsZero() {
				issued = iat
			}
		case c.config.DefaultTTL > 0:
			expires = now.Add(c.config.DefaultTTL)
		default:
			return Credential{}, fmt.Errorf("%w for %q", ErrNoExpiry, key)
		}
	}
	if issued.IsZero() {
		issued = now
	}
	if !now.Before(expires) {
		return Credential{}, fmt.Errorf("%w on arrival: %q expired at %s", ErrExpired, key, expires.Format(time.RFC3339))
	}

	return Credential{
		Key:       key,
		Secret:    append([]byte(nil), raw.Secret...),
		IssuedAt:  issued,
		ExpiresAt: expires,
		RefreshAt: expires.Add(-c.config.RefreshBuffer),
	}, nil
}

func (c *Cache) storeLocked(cred Credential) {
	c.entries.put(cred)
	evicted := c.entries.evict(c.config.MaxEntries, func(key string) bool {
		_, busy := c.flights[key]
		return busy
	})
	c.evictions.Add(int64(len(evicted)))
}
