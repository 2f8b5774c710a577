package resilience

import (
	"sort"
	"sync"
)

// Breakers holds one CircuitBreaker per endpoint class. Breakers are created
// lazily on first use; a failure streak in one class never affects another.
type Breakers struct {
	defaults CircuitBreakerConfig

	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	overrides map[string]CircuitBreakerConfig
}

// NewBreakers creates a registry whose breakers use defaults unless a
// class-specific config is registered with Configure.
func NewBreakers(defaults CircuitBreakerConfig) *Breakers {
	return &Breakers{
		defaults:  defaults,
		breakers:  make(map[string]*CircuitBreaker),
		overrides: make(map[string]CircuitBreakerConfig),
	}
}

// Configure sets the config for class. It replaces any breaker already
// created for the class.
func (b *Breakers) Configure(class string, config CircuitBreakerConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if config.OnStateChange == nil {
		config.OnStateChange = b.defaults.OnStateChange
	}
	if config.Clock == nil {
		config.Clock = b.defaults.Clock
	}
	b.overrides[class] = config
	delete(b.breakers, class)
}

// Get returns the breaker for class, creating it if needed.
func (b *Breakers) Get(class string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[class]; ok {
		return cb
	}

	config, ok := b.overrides[class]
	if !ok {
		config = b.defaults
	}
	config.Name = class

	cb := NewCircuitBreaker(config)
	b.breakers[class] = cb
	return cb
}

// Check calls Check on the breaker for class.
func (b *Breakers) Check(class string) error {
	return b.Get(class).Check()
}

// RecordSuccess records a success for class.
func (b *Breakers) RecordSuccess(class string) {
	b.Get(class).RecordSuccess()
}

// RecordFailure records a failure for class.
func (b *Breakers) RecordFailure(class string) {
	b.Get(class).RecordFailure()
}

// Abandon releases a half-open trial slot for class.
func (b *Breakers) Abandon(class string) {
	b.Get(class).Abandon()
}

// Classes returns the known endpoint classes in sorted order.
func (b *Breakers) Classes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.breakers))
	for name := range b.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns metrics for every breaker created so far.
func (b *Breakers) Snapshot() map[string]CircuitBreakerMetrics {
	b.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(b.breakers))
	for _, cb := range b.breakers {
		breakers = append(breakers, cb)
	}
	b.mu.Unlock()

	out := make(map[string]CircuitBreakerMetrics, len(breakers))
	for _, cb := range breakers {
		out[cb.Name()] = cb.Metrics()
	}
	return out
}
