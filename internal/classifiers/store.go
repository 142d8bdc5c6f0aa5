package classifiers

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Store persists classifier records. At most one record is current per
// (exploration, state); Install replaces it atomically.
type Store interface {
	// Install makes r the current record of its state and returns the record it
	// superseded, or nil when the state had none.
	Install(ctx context.Context, r *Record) (*Record, error)
	Find(ctx context.Context, id string) (*Record, error)
	FindByState(ctx context.Context, expID, stateName string) (*Record, error)
	ListByExploration(ctx context.Context, expID string) ([]Record, error)
	Delete(ctx context.Context, id string) error
	// DeleteByExploration removes every record of an exploration and returns them.
	DeleteByExploration(ctx context.Context, expID string) ([]Record, error)
}

type stateKey struct {
	expID     string
	stateName string
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	current map[stateKey]string
}

// NewMemoryStore creates an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]Record),
		current: make(map[stateKey]string),
	}
}

func (m *memoryStore) Install(ctx context.Context, r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.ClassifierID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, r.ClassifierID)
	}

	key := stateKey{r.ExpID, r.StateName}

	var superseded *Record
	if id, ok := m.current[key]; ok {
		old := m.records[id]
		superseded = &old
		delete(m.records, id)
	}

	m.records[r.ClassifierID] = *r
	m.current[key] = r.ClassifierID
	return superseded, nil
}

func (m *memoryStore) Find(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *memoryStore) FindByState(ctx context.Context, expID, stateName string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.current[stateKey{expID, stateName}]
	if !ok {
		return nil, ErrNotFound
	}
	r := m.records[id]
	return &r, nil
}

func (m *memoryStore) ListByExploration(ctx context.Context, expID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Record, 0)
	for _, id := range slices.Sorted(maps.Keys(m.records)) {
		if r := m.records[id]; r.ExpID == expID {
			result = append(result, r)
		}
	}
	slices.SortStableFunc(result, func(a, b Record) int {
		return cmp.Compare(a.StateName, b.StateName)
	})
	return result, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	delete(m.current, stateKey{r.ExpID, r.StateName})
	return nil
}

func (m *memoryStore) DeleteByExploration(ctx context.Context, expID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make([]Record, 0)
	for id, r := range m.records {
		if r.ExpID != expID {
			continue
		}
		removed = append(removed, r)
		delete(m.records, id)
		delete(m.current, stateKey{r.ExpID, r.StateName})
	}
	slices.SortFunc(removed, func(a, b Record) int {
		return cmp.Compare(a.ClassifierID, b.ClassifierID)
	})
	return removed, nil
}
