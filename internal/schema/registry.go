package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered entity types of an application.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register validates def and adds it to the registry.
func (r *Registry) Register(def EntityType) (*Type, error) {
	t, err := Register(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[t.Name()]; dup {
		return nil, &ValidationError{Type: t.Name(), Message: "type already registered"}
	}
	r.types[t.Name()] = t
	return t, nil
}

// RegisterAll registers every definition, stopping at the first error.
func (r *Registry) RegisterAll(defs []EntityType) error {
	for _, def := range defs {
		if _, err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a registered type.
func (r *Registry) Get(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("entity type %q is not registered", name)
	}
	return t, nil
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
