package answers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JaimeStill/tally/pkg/repository"
)

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store over the answer_cursors and answer_shards tables.
// The cursor row of a triple is its serialization point: appends lock it with
// SELECT ... FOR UPDATE, and two first appends racing to create shard 0 collide
// on the shard primary key, which is reported as ErrConflict.
func NewPostgresStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) WithTriple(ctx context.Context, t Triple, fn func(tx Tx) error) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, fn(&pgTx{tx: tx, triple: t})
	})
	if err != nil && repository.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *pgStore) ReadShards(ctx context.Context, t Triple) (*Cursor, []Shard, error) {
	type result struct {
		cursor *Cursor
		shards []Shard
	}

	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	r, err := repository.WithTxOptions(ctx, s.db, opts, func(tx *sql.Tx) (result, error) {
		c, err := repository.QueryOptional(ctx, tx,
			`SELECT exp_id, exp_version, state_name, interaction_id, schema_version, shard_index, shard_size
			FROM answer_cursors
			WHERE exp_id = $1 AND exp_version = $2 AND state_name = $3`,
			[]any{t.ExpID, t.ExpVersion, t.StateName},
			scanCursor,
		)
		if err != nil {
			return result{}, fmt.Errorf("read cursor: %w", err)
		}
		if c == nil {
			return result{}, nil
		}

		shards, err := repository.QueryMany(ctx, tx,
			`SELECT shard_index, answers
			FROM answer_shards
			WHERE exp_id = $1 AND exp_version = $2 AND state_name = $3
			ORDER BY shard_index`,
			[]any{t.ExpID, t.ExpVersion, t.StateName},
			scanShard,
		)
		if err != nil {
			return result{}, fmt.Errorf("read shards: %w", err)
		}

		return result{cursor: c, shards: shards}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return r.cursor, r.shards, nil
}

func (s *pgStore) Triples(ctx context.Context, expID string) ([]Triple, error) {
	return repository.QueryMany(ctx, s.db,
		`SELECT exp_id, exp_version, state_name
		FROM answer_cursors
		WHERE exp_id = $1
		ORDER BY exp_version, state_name`,
		[]any{expID},
		func(sc repository.Scanner) (Triple, error) {
			var t Triple
			err := sc.Scan(&t.ExpID, &t.ExpVersion, &t.StateName)
			return t, err
		},
	)
}

type pgTx struct {
	tx     *sql.Tx
	triple Triple
}

func (p *pgTx) key() []any {
	return []any{p.triple.ExpID, p.triple.ExpVersion, p.triple.StateName}
}

func (p *pgTx) Cursor(ctx context.Context) (*Cursor, error) {
	c, err := repository.QueryOptional(ctx, p.tx,
		`SELECT exp_id, exp_version, state_name, interaction_id, schema_version, shard_index, shard_size
		FROM answer_cursors
		WHERE exp_id = $1 AND exp_version = $2 AND state_name = $3
		FOR UPDATE`,
		p.key(),
		scanCursor,
	)
	if err != nil {
		return nil, fmt.Errorf("lock cursor: %w", err)
	}
	return c, nil
}

func (p *pgTx) CreateShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error {
	body := encodeArray(encoded)
	if len(body) != size {
		return fmt.Errorf("shard %d size %d does not match %d", index, len(body), size)
	}

	args := append(p.key(), index, string(body), size)
	if _, err := p.tx.ExecContext(ctx,
		`INSERT INTO answer_shards (exp_id, exp_version, state_name, shard_index, answers, byte_size)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		args...,
	); err != nil {
		return fmt.Errorf("create shard %d: %w", index, err)
	}
	return nil
}

func (p *pgTx) AppendToShard(ctx context.Context, index int, encoded []json.RawMessage, size int) error {
	parts := make([]string, len(encoded))
	for i, e := range encoded {
		parts[i] = string(e)
	}

	args := append(p.key(), index, strings.Join(parts, ","), size)
	err := repository.ExecExpectOne(ctx, p.tx,
		`UPDATE answer_shards
		SET answers = CASE
				WHEN byte_size <= 2 THEN '[' || $5 || ']'
				ELSE left(answers, -1) || ',' || $5 || ']'
			END,
			byte_size = $6
		WHERE exp_id = $1 AND exp_version = $2 AND state_name = $3 AND shard_index = $4`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("append to shard %d: %w", index, err)
	}
	return nil
}

func (p *pgTx) SaveCursor(ctx context.Context, c *Cursor) error {
	args := append(p.key(), c.InteractionID, c.SchemaVersion, c.ShardIndex, c.ShardSize)
	if _, err := p.tx.ExecContext(ctx,
		`INSERT INTO answer_cursors
			(exp_id, exp_version, state_name, interaction_id, schema_version, shard_index, shard_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (exp_id, exp_version, state_name) DO UPDATE SET
			shard_index = EXCLUDED.shard_index,
			shard_size = EXCLUDED.shard_size,
			updated_at = NOW()`,
		args...,
	); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

func scanCursor(s repository.Scanner) (Cursor, error) {
	var c Cursor
	err := s.Scan(
		&c.ExpID,
		&c.ExpVersion,
		&c.StateName,
		&c.InteractionID,
		&c.SchemaVersion,
		&c.ShardIndex,
		&c.ShardSize,
	)
	return c, err
}

func scanShard(s repository.Scanner) (Shard, error) {
	var sh Shard
	var body string
	if err := s.Scan(&sh.Index, &body); err != nil {
		return sh, err
	}
	sh.Answers = []byte(body)
	return sh, nil
}
