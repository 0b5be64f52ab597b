package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs the agent for one role.
type Factory func(role Role) (Agent, error)

// Registry maintains known agent factories keyed by provider name, so the
// CLI and server can switch between live and scripted agents without either
// knowing construction details.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a factory. Returns an error if the provider already
// exists.
func (r *Registry) Register(provider string, factory Factory) error {
	if provider == "" {
		return fmt.Errorf("agent: provider name is required")
	}
	if factory == nil {
		return fmt.Errorf("agent: factory is required for %s", provider)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[provider]; exists {
		return fmt.Errorf("agent: %s already registered", provider)
	}
	r.factories[provider] = factory
	return nil
}

// Build constructs a full agent set from the named provider.
func (r *Registry) Build(provider string) (Set, error) {
	r.mu.RLock()
	factory, ok := r.factories[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: unknown provider %s", provider)
	}
	agents := make([]Agent, 0, len(Roles()))
	for _, role := range Roles() {
		a, err := factory(role)
		if err != nil {
			return nil, fmt.Errorf("agent: build %s: %w", role, err)
		}
		agents = append(agents, a)
	}
	return NewSet(agents...)
}

// Providers returns the sorted list of registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
