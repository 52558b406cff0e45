package service

import (
	"strings"

	"crypto_exchange/internal/domain"
)

// UpstreamFactory constructs an upstream integration.
type UpstreamFactory func() domain.Upstream

// Registry maps provider names to ready Providers and remembers the fallback order.
type Registry struct {
	order     []string
	providers map[string]*Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// BuildRegistry instantiates the named providers, in order, from factories.
// Every name must have a factory.
func BuildRegistry(names []string, factories map[string]UpstreamFactory, store domain.CacheStore, opts ...ProviderOption) (*Registry, error) {
	r := NewRegistry()
	for _, name := range names {
		factory, ok := factories[strings.ToLower(name)]
		if !ok {
			return nil, domain.NewInvalidProvider(name)
		}
		r.Register(NewProvider(factory(), store, opts...))
	}
	return r, nil
}

// Register adds p to the end of the fallback order. Re-registering a name replaces
// the provider but keeps its position.
func (r *Registry) Register(p *Provider) {
	name := strings.ToLower(p.Name())
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// Get looks a provider up by name, case-insensitively.
func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.NewInvalidProvider(name)
	}
	return p, nil
}

// Providers returns the providers in fallback order.
func (r *Registry) Providers() []*Provider {
	result := make([]*Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
