package auth

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/jonwraymond/remoteops/client"
)

// SignerFactory builds a signer from the auth.signer_options section.
type SignerFactory func(cfg map[string]any) (client.Signer, error)

// Registry maps signer names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SignerFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]SignerFactory{}}
}

// RegisterSigner adds factory under name. Names are unique.
func (r *Registry) RegisterSigner(name string, factory SignerFactory) error {
	if name == "" || factory == nil {
		return errors.New("auth: signer registration needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("auth: signer %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// CreateSigner builds the signer registered under name.
func (r *Registry) CreateSigner(name string, cfg map[string]any) (client.Signer, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSigner, name)
	}
	return factory(cfg)
}

// ListSigners returns the registered names, sorted.
func (r *Registry) ListSigners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// decodeOptions fills a signer config from its options map. Unknown keys
// are errors so typos surface at startup.
func decodeOptions[T any](cfg map[string]any) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &out,
		ErrorUnused: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(cfg); err != nil {
		return out, fmt.Errorf("auth: signer options: %w", err)
	}
	return out, nil
}

// DefaultRegistry holds the "bearer", "api_key" and "hmac" signers.
var DefaultRegistry = NewRegistry()

func init() {
	_ = DefaultRegistry.RegisterSigner("bearer", func(cfg map[string]any) (client.Signer, error) {
		c, err := decodeOptions[BearerConfig](cfg)
		if err != nil {
			return nil, err
		}
		return NewBearerSigner(c), nil
	})
	_ = DefaultRegistry.RegisterSigner("api_key", func(cfg map[string]any) (client.Signer, error) {
		c, err := decodeOptions[APIKeyConfig](cfg)
		if err != nil {
			return nil, err
		}
		return NewAPIKeySigner(c), nil
	})
	_ = DefaultRegistry.RegisterSigner("hmac", func(cfg map[string]any) (client.Signer, error) {
		c, err := decodeOptions[HMACConfig](cfg)
		if err != nil {
			return nil, err
		}
		s, err := NewHMACSigner(c)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
