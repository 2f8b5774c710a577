package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

// MemoryCache is a process-local Cache. Entries expire by TTL; with a
// bound set, the least recently read entry goes first.
type MemoryCache struct {
	clock      clock.Clock
	maxEntries int

	mu    sync.Mutex
	order *list.List // front is most recently used
	index map[string]*list.Element
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock sets the clock that expires entries.
func WithClock(c clock.Clock) MemoryOption {
	return func(m *MemoryCache) { m.clock = clock.OrReal(c) }
}

// WithMaxEntries bounds the number of stored entries. Zero means no bound.
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryCache) { m.maxEntries = n }
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		clock: clock.New(),
		order: list.New(),
		index: make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if !now.Before(e.expiresAt) {
		c.removeLocked(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	now := c.clock.Now()
	entry := &memoryEntry{key: key, value: value, expiresAt: now.Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return nil
	}
	c.index[key] = c.order.PushFront(entry)
	c.evictLocked(now)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Len returns the number of stored entries, expired ones not yet seen
// included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evictLocked trims the cache to maxEntries, dropping expired entries
// before live ones.
func (c *MemoryCache) evictLocked(now time.Time) {
	if c.maxEntries <= 0 || c.order.Len() <= c.maxEntries {
		return
	}
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*memoryEntry).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
	for c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*memoryEntry).key)
}

var _ Cache = (*MemoryCache)(nil)
