package stats

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	outputs map[outputKey]CalculationOutput
	events  []Event
	stats   map[statsKey]ExplorationStats
}

// NewMemoryStore creates an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		outputs: make(map[outputKey]CalculationOutput),
		stats:   make(map[statsKey]ExplorationStats),
	}
}

func (m *memoryStore) PutOutputs(ctx context.Context, outputs []CalculationOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range outputs {
		o.Output = slices.Clone(o.Output)
		m.outputs[outputKey{o.ExpID, o.StateName, o.CalculationID}] = o
	}
	return nil
}

func (m *memoryStore) GetOutput(ctx context.Context, expID, stateName, calculationID string) (*CalculationOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.outputs[outputKey{expID, stateName, calculationID}]
	if !ok {
		return nil, nil
	}
	o.Output = slices.Clone(o.Output)
	return &o, nil
}

func (m *memoryStore) RecordEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = int64(len(m.events) + 1)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, *e)
	return nil
}

func (m *memoryStore) EventsAfter(ctx context.Context, expID string, version int, after int64, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range m.events[min(int(after), len(m.events)):] {
		if e.ExpID != expID || e.ExpVersion != version {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *memoryStore) EventVersions(ctx context.Context, expID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int]struct{})
	for _, e := range m.events {
		if e.ExpID == expID {
			seen[e.ExpVersion] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (m *memoryStore) GetStats(ctx context.Context, expID string, version int) (*ExplorationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stats[statsKey{expID, version}]
	if !ok {
		return nil, nil
	}
	s.StateHitCounts = maps.Clone(s.StateHitCounts)
	return &s, nil
}

func (m *memoryStore) SaveStats(ctx context.Context, s *ExplorationStats, checkpoint int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := statsKey{s.ExpID, s.ExpVersion}
	if current := m.stats[key].Checkpoint; current != checkpoint {
		return fmt.Errorf("%w: %s v%d checkpoint is %d, expected %d",
			ErrConflict, s.ExpID, s.ExpVersion, current, checkpoint)
	}

	saved := *s
	saved.StateHitCounts = maps.Clone(s.StateHitCounts)
	m.stats[key] = saved
	return nil
}

func (m *memoryStore) StatsVersions(ctx context.Context, expID string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := make([]int, 0)
	for k := range m.stats {
		if k.expID == expID {
			versions = append(versions, k.version)
		}
	}
	slices.Sort(versions)
	return versions, nil
}
