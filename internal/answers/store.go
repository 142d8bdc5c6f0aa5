package answers

import (
	"context"
	"encoding/json"
)

// Cursor tracks the newest shard of a triple so appends never rescan older shards.
// ShardSize is the byte length of the newest shard's serialized answer array.
type Cursor struct {
	Triple
	InteractionID string
	SchemaVersion int
	ShardIndex    int
	ShardSize     int
}

// Shard is one stored unit of a triple's log: a serialized JSON array of answers.
type Shard struct {
	Index   int
	Answers []byte
}

// Tx is a store transaction scoped to one triple. Writes become visible
// only if the enclosing WithTriple call succeeds.
type Tx interface {
	// Cursor returns the triple's cursor, or nil when no shard exists yet.
	Cursor(ctx context.Context) (*Cursor, error)
	// CreateShard writes a new shard holding encoded answers.
	CreateShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error
	// AppendToShard adds encoded answers to the end of an existing shard.
	AppendToShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error
	SaveCursor(ctx context.Context, c *Cursor) error
}

// Store is the persistence collaborator of the log.
type Store interface {
	// WithTriple runs fn while holding the triple's serialization point.
	// Concurrent calls for one triple never interleave; calls for different
	// triples are independent. A lost race is reported as ErrConflict.
	WithTriple(ctx context.Context, t Triple, fn func(tx Tx) error) error
	// ReadShards returns the cursor and every shard of t in ascending index order.
	// The cursor is nil when the triple has no log.
	ReadShards(ctx context.Context, t Triple) (*Cursor, []Shard, error)
	// Triples lists every triple of an exploration that has a log,
	// ordered by version then state name.
	Triples(ctx context.Context, expID string) ([]Triple, error)
}
