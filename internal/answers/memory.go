package answers

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

type memoryLog struct {
	mu     sync.Mutex
	cursor *Cursor
	shards [][]byte
}

type memoryStore struct {
	mu   sync.Mutex
	logs map[Triple]*memoryLog
}

// NewMemoryStore creates an in-process Store. Each triple has its own mutex.
func NewMemoryStore() Store {
	return &memoryStore{logs: make(map[Triple]*memoryLog)}
}

func (m *memoryStore) log(t Triple) *memoryLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.logs[t]
	if !ok {
		l = &memoryLog{}
		m.logs[t] = l
	}
	return l
}

func (m *memoryStore) WithTriple(ctx context.Context, t Triple, fn func(tx Tx) error) error {
	l := m.log(t)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{log: l, staged: make(map[int][]byte), next: len(l.shards)}
	if l.cursor != nil {
		c := *l.cursor
		tx.cursor = &c
	}

	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (m *memoryStore) ReadShards(ctx context.Context, t Triple) (*Cursor, []Shard, error) {
	m.mu.Lock()
	l, ok := m.logs[t]
	m.mu.Unlock()
	if !ok {
		return nil, nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor == nil {
		return nil, nil, nil
	}

	c := *l.cursor
	shards := make([]Shard, len(l.shards))
	for i, data := range l.shards {
		shards[i] = Shard{Index: i, Answers: bytes.Clone(data)}
	}
	return &c, shards, nil
}

func (m *memoryStore) Triples(ctx context.Context, expID string) ([]Triple, error) {
	m.mu.Lock()
	candidates := make([]*memoryLog, 0)
	triples := make([]Triple, 0)
	for t, l := range m.logs {
		if t.ExpID == expID {
			triples = append(triples, t)
			candidates = append(candidates, l)
		}
	}
	m.mu.Unlock()

	result := make([]Triple, 0, len(triples))
	for i, l := range candidates {
		l.mu.Lock()
		if l.cursor != nil {
			result = append(result, triples[i])
		}
		l.mu.Unlock()
	}

	slices.SortFunc(result, func(a, b Triple) int {
		return cmp.Or(cmp.Compare(a.ExpVersion, b.ExpVersion), cmp.Compare(a.StateName, b.StateName))
	})
	return result, nil
}

// memoryTx stages shard writes and applies them together on commit.
type memoryTx struct {
	log    *memoryLog
	cursor *Cursor
	staged map[int][]byte
	next   int
}

func (tx *memoryTx) Cursor(ctx context.Context) (*Cursor, error) {
	if tx.cursor == nil {
		return nil, nil
	}
	c := *tx.cursor
	return &c, nil
}

func (tx *memoryTx) shard(index int) ([]byte, bool) {
	if data, ok := tx.staged[index]; ok {
		return data, true
	}
	if index >= 0 && index < len(tx.log.shards) {
		return tx.log.shards[index], true
	}
	return nil, false
}

func (tx *memoryTx) CreateShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error {
	if _, exists := tx.shard(index); exists {
		return fmt.Errorf("%w: shard %d already exists", ErrConflict, index)
	}
	if index != tx.next {
		return fmt.Errorf("shard %d is not the next shard index %d", index, tx.next)
	}

	data := encodeArray(encoded)
	if len(data) != size {
		return fmt.Errorf("shard %d size %d does not match %d", index, len(data), size)
	}
	tx.staged[index] = data
	tx.next++
	return nil
}

func (tx *memoryTx) AppendToShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error {
	current, ok := tx.shard(index)
	if !ok {
		return fmt.Errorf("shard %d does not exist", index)
	}

	data := appendArray(current, encoded)
	if len(data) != size {
		return fmt.Errorf("shard %d size %d does not match %d", index, len(data), size)
	}
	tx.staged[index] = data
	return nil
}

func (tx *memoryTx) SaveCursor(ctx context.Context, c *Cursor) error {
	saved := *c
	tx.cursor = &saved
	return nil
}

func (tx *memoryTx) commit() {
	for _, index := range slices.Sorted(maps.Keys(tx.staged)) {
		if index < len(tx.log.shards) {
			tx.log.shards[index] = tx.staged[index]
		} else {
			tx.log.shards = append(tx.log.shards, tx.staged[index])
		}
	}
	tx.log.cursor = tx.cursor
}
