package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent bounds logical operations in flight, retries and rate
	// limit waits included.
	// Default: 10
	MaxConcurrent int

	// FailFast rejects with ErrBulkheadFull instead of queueing.
	FailFast bool
}

// BulkheadMetrics is a snapshot of a Bulkhead.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int // peak Active since creation
	Available     int
	MaxConcurrent int
	Rejected      int64 // fail-fast rejections and abandoned waits
}

// Bulkhead caps concurrent operations. Queued callers wait until a slot
// frees or their context ends.
type Bulkhead struct {
	failFast bool
	sem      *semaphore.Weighted

	mu sync.Mutex
	m  BulkheadMetrics
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		failFast: config.FailFast,
		sem:      semaphore.NewWeighted(int64(config.MaxConcurrent)),
		m:        BulkheadMetrics{MaxConcurrent: config.MaxConcurrent},
	}
}

// Acquire takes a slot. Every successful Acquire must be paired with one
// Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	var err error
	switch {
	case b.sem.TryAcquire(1):
	case b.failFast:
		err = ErrBulkheadFull
	default:
		err = b.sem.Acquire(ctx, 1)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.m.Rejected++
		return err
	}
	b.m.Active++
	b.m.MaxActive = max(b.m.MaxActive, b.m.Active)
	return nil
}

// Release frees a slot. Releasing with nothing held is a no-op.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m.Active == 0 {
		return
	}
	b.m.Active--
	b.sem.Release(1)
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// Metrics returns a snapshot.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.m
	m.Available = m.MaxConcurrent - m.Active
	return m
}
