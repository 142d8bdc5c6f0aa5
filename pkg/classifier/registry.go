package classifier

import (
	"fmt"
	"slices"
	"sync"
)

// Constructor creates an untrained Model.
type Constructor func() Model

// Registry maps algorithm ids to model constructors.
// Registries are explicit values owned by the components that use them.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// NewDefaultRegistry creates a Registry holding the built-in algorithms.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(LDAStringClassifierID, func() Model { return NewLDA() })
	r.MustRegister(NaiveBayesStringClassifierID, func() Model { return NewNaiveBayes() })
	return r
}

// Register adds a constructor under id. Registering an id twice is an error.
func (r *Registry) Register(id string, ctor Constructor) error {
	if id == "" {
		return fmt.Errorf("algorithm id required")
	}
	if ctor == nil {
		return fmt.Errorf("constructor required for %s", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ctors[id]; ok {
		return fmt.Errorf("algorithm %s already registered", id)
	}
	r.ctors[id] = ctor
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(id string, ctor Constructor) {
	if err := r.Register(id, ctor); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[id]
	return ok
}

// New creates an untrained model for id.
func (r *Registry) New(id string) (Model, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, id)
	}
	return ctor(), nil
}

// Load creates a model for id and restores it from serialized data.
func (r *Registry) Load(id string, data map[string]any) (Model, error) {
	m, err := r.New(id)
	if err != nil {
		return nil, err
	}
	if err := m.Deserialize(data); err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return m, nil
}

// IDs returns the registered algorithm ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
