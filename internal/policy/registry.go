// Package policy holds the decision policies the automation loop can consult.
package policy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/papertrader/internal/domain"
)

// Registry manages the named set of policies available at runtime. It is safe
// for concurrent use.
type Registry struct {
	policies map[string]domain.Policy
	mu       sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]domain.Policy),
	}
}

// Register adds p under its own name, replacing any previous entry.
func (r *Registry) Register(p domain.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.Name()] = p
}

// Get retrieves a policy by name.
func (r *Registry) Get(name string) (domain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("policy %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

// List returns the names of all registered policies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.policies))
	for n := range r.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
