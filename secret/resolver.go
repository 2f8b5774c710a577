package secret

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
)

const refPrefix = "secretref:"

// refPattern finds references embedded in a larger value.
var refPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Ref is a parsed secret reference, secretref:<provider>:<path>.
type Ref struct {
	Provider string
	Path     string
}

func (r Ref) String() string {
	return refPrefix + r.Provider + ":" + r.Path
}

// ParseRef parses value when the whole of it is a reference.
func ParseRef(value string) (Ref, bool) {
	rest, ok := strings.CutPrefix(value, refPrefix)
	if !ok {
		return Ref{}, false
	}
	provider, path, ok := strings.Cut(rest, ":")
	if !ok || provider == "" || path == "" {
		return Ref{}, false
	}
	return Ref{Provider: provider, Path: path}, true
}

// ContainsRef reports whether value holds a reference anywhere in it.
func ContainsRef(value string) bool {
	return refPattern.MatchString(value)
}

// Resolver turns configuration values into secrets. A value is first
// expanded with ExpandEnvStrict. A value that is then a single reference
// resolves to the provider's answer verbatim. References embedded in
// longer text, such as "Bearer secretref:env:TOKEN", are substituted in
// place. Anything else is returned as expanded.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Strict resolvers reject references that resolve to "".
type Resolver struct {
	strict bool

	mu        sync.RWMutex
	providers map[string]Provider
}

// NewResolver creates a resolver over providers, keyed by Provider.Name.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{strict: strict, providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same name.
func (r *Resolver) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Providers lists the registered provider names, sorted.
func (r *Resolver) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// ResolveValue expands and resolves value.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if ref, ok := ParseRef(expanded); ok {
		return r.Resolve(ctx, ref)
	}

	locs := refPattern.FindAllStringSubmatchIndex(expanded, -1)
	if len(locs) == 0 {
		return expanded, nil
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		secret, err := r.Resolve(ctx, Ref{Provider: expanded[loc[2]:loc[3]], Path: expanded[loc[4]:loc[5]]})
		if err != nil {
			return "", err
		}
		b.WriteString(expanded[last:loc[0]])
		b.WriteString(secret)
		last = loc[1]
	}
	b.WriteString(expanded[last:])
	return b.String(), nil
}

// Resolve asks the provider named by ref.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	r.mu.RLock()
	p, ok := r.providers[ref.Provider]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotRegistered, ref.Provider)
	}

	v, err := p.Resolve(ctx, ref.Path)
	switch {
	case err != nil:
		return "", fmt.Errorf("secret %s: %w", ref.Provider, err)
	case v == "" && r.strict:
		return "", fmt.Errorf("%w: provider %q", ErrEmptyValue, ref.Provider)
	}
	return v, nil
}

// Close closes every provider and joins their errors.
func (r *Resolver) Close() error {
	r.mu.Lock()
	providers := r.providers
	r.providers = make(map[string]Provider)
	r.mu.Unlock()

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(providers)) {
		if err := providers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
