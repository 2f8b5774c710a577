package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/remoteops/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryCache_GetSetDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if val, ok := c.Get(ctx, "nonexistent"); ok || val != nil {
		t.Errorf("Get on empty cache = %q, %v; want nil, false", val, ok)
	}

	value := []byte("test-value")
	if err := c.Set(ctx, "k", value, 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || !bytes.Equal(got, value) {
		t.Errorf("Get after Set = %q, %v; want %q, true", got, ok, value)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete on missing key should not error, got: %v", err)
	}
}

func TestMemoryCache_ZeroTTLDoesNotStore(t *testing.T) {
	c := NewMemoryCache()
	_ = c.Set(context.Background(), "k", []byte("v"), 0)

	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	c := NewMemoryCache()
	if err := c.Set(context.Background(), "bad\nkey", []byte("v"), time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set() error = %v, want ErrInvalidKey", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := NewMemoryCache(WithClock(clk))
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), time.Minute)
	clk.Advance(59 * time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("Get before expiry should hit")
	}

	clk.Advance(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get at expiry should miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestMemoryCache_MaxEntries(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := NewMemoryCache(WithClock(clk), WithMaxEntries(2))
	ctx := context.Background()

	_ = c.Set(ctx, "ops/1", []byte("1"), time.Hour)
	_ = c.Set(ctx, "ops/2", []byte("2"), time.Hour)
	c.Get(ctx, "ops/1")
	_ = c.Set(ctx, "ops/3", []byte("3"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get(ctx, "ops/2"); ok {
		t.Error("least recently read entry should have been dropped")
	}
	if _, ok := c.Get(ctx, "ops/1"); !ok {
		t.Error("recently read entry should survive")
	}

	// Overwriting an existing key never evicts.
	_ = c.Set(ctx, "ops/1", []byte("1b"), time.Hour)
	if _, ok := c.Get(ctx, "ops/3"); !ok {
		t.Error("overwrite evicted another entry")
	}
}

func TestMemoryCache_EvictsExpiredFirst(t *testing.T) {
	clk := clock.NewFake(epoch)
	c := NewMemoryCache(WithClock(clk), WithMaxEntries(2))
	ctx := context.Background()

	_ = c.Set(ctx, "live", []byte("1"), time.Hour)
	_ = c.Set(ctx, "short", []byte("2"), time.Minute)
	clk.Advance(2 * time.Minute)
	_ = c.Set(ctx, "new", []byte("3"), time.Hour)

	if _, ok := c.Get(ctx, "live"); !ok {
		t.Error("live entry dropped while an expired one was present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(WithMaxEntries(16))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%26))
			_ = c.Set(ctx, key, []byte{byte(i)}, time.Minute)
			c.Get(ctx, key)
			if i%5 == 0 {
				_ = c.Delete(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("Len() = %d, want <= 16", c.Len())
	}
}
