package check

import (
	"fmt"
	"sort"
	"sync"
)

// Keys of a check configuration consumed by the Registry itself.
const (
	KeyType    = "type"
	KeyEnabled = "enabled"
)

// Factory is a function that creates a Check from a raw configuration map.
// Each check type registers a Factory with the Registry.
type Factory func(config map[string]any) (Check, error)

// Registry holds registered check types and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a check type factory under the given name.
// Returns an error if the name is already registered.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("check type %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a Check of the given type using the provided config.
// Returns an error if the type is not registered or the factory fails.
func (r *Registry) Create(name string, config map[string]any) (Check, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown check type %q", name)
	}
	return factory(config)
}

// Build creates the checks listed in configs, in order. Each config names
// its type under KeyType; configs with KeyEnabled set to false are skipped.
// The remaining keys are passed to the type's factory.
func (r *Registry) Build(configs []map[string]any) ([]Check, error) {
	checks := make([]Check, 0, len(configs))
	for i, cfg := range configs {
		name, ok := cfg[KeyType].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("check #%d: missing %q", i+1, KeyType)
		}
		if enabled, ok := cfg[KeyEnabled].(bool); ok && !enabled {
			continue
		}

		rest := make(map[string]any, len(cfg))
		for k, v := range cfg {
			if k != KeyType && k != KeyEnabled {
				rest[k] = v
			}
		}
		c, err := r.Create(name, rest)
		if err != nil {
			return nil, fmt.Errorf("check #%d (%s): %w", i+1, name, err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Definitions builds the checks listed in configs once and returns
// Definitions producing them for every instance.
func (r *Registry) Definitions(configs []map[string]any) (Definitions, error) {
	checks, err := r.Build(configs)
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		return nil, ErrNoChecks
	}
	return List(checks...), nil
}

// Types returns the names of all registered check types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
