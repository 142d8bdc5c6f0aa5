package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JaimeStill/tally/pkg/repository"
)

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store over the calculation_outputs, stats_events,
// and exploration_stats tables.
func NewPostgresStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) PutOutputs(ctx context.Context, outputs []CalculationOutput) error {
	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		for _, o := range outputs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO calculation_outputs
					(exp_id, state_name, calculation_id, calculation_output, pass_id, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (exp_id, state_name, calculation_id) DO UPDATE SET
					calculation_output = EXCLUDED.calculation_output,
					pass_id = EXCLUDED.pass_id,
					updated_at = EXCLUDED.updated_at`,
				o.ExpID, o.StateName, o.CalculationID, []byte(o.Output), o.PassID, o.UpdatedAt,
			); err != nil {
				return struct{}{}, fmt.Errorf("put output %s/%s/%s: %w", o.ExpID, o.StateName, o.CalculationID, err)
			}
		}
		return struct{}{}, nil
	})
	if err != nil && repository.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *pgStore) GetOutput(ctx context.Context, expID, stateName, calculationID string) (*CalculationOutput, error) {
	o, err := repository.QueryOptional(ctx, s.db,
		`SELECT exp_id, state_name, calculation_id, calculation_output, pass_id, updated_at
		FROM calculation_outputs
		WHERE exp_id = $1 AND state_name = $2 AND calculation_id = $3`,
		[]any{expID, stateName, calculationID},
		func(sc repository.Scanner) (CalculationOutput, error) {
			var o CalculationOutput
			var data []byte
			err := sc.Scan(&o.ExpID, &o.StateName, &o.CalculationID, &data, &o.PassID, &o.UpdatedAt)
			o.Output = json.RawMessage(data)
			return o, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("get output: %w", err)
	}
	return o, nil
}

// eventLock keys the advisory lock that orders event inserts against checkpoint
// reads for one exploration version. Inserts hold it shared; readers take it
// exclusively, so every id a reader can see was committed before it looked.
const (
	eventLockShared    = `SELECT pg_advisory_xact_lock_shared(hashtext($1), $2)`
	eventLockExclusive = `SELECT pg_advisory_xact_lock(hashtext($1), $2)`
)

func (s *pgStore) RecordEvent(ctx context.Context, e *Event) error {
	var state sql.NullString
	if e.StateName != "" {
		state = sql.NullString{String: e.StateName, Valid: true}
	}

	_, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := tx.ExecContext(ctx, eventLockShared, e.ExpID, e.ExpVersion); err != nil {
			return struct{}{}, fmt.Errorf("lock events: %w", err)
		}

		row := tx.QueryRowContext(ctx,
			`INSERT INTO stats_events (event_type, exp_id, exp_version, state_name, session_id, first_visit)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`,
			string(e.Type), e.ExpID, e.ExpVersion, state, e.SessionID, e.FirstVisit,
		)
		return struct{}{}, row.Scan(&e.ID, &e.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

func (s *pgStore) EventsAfter(ctx context.Context, expID string, version int, after int64, limit int) ([]Event, error) {
	query := `SELECT id, event_type, exp_id, exp_version, COALESCE(state_name, ''), session_id, first_visit, created_at
		FROM stats_events
		WHERE exp_id = $1 AND exp_version = $2 AND id > $3
		ORDER BY id`
	args := []any{expID, version, after}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) ([]Event, error) {
		if _, err := tx.ExecContext(ctx, eventLockExclusive, expID, version); err != nil {
			return nil, fmt.Errorf("lock events: %w", err)
		}

		return repository.QueryMany(ctx, tx, query, args, func(sc repository.Scanner) (Event, error) {
			var e Event
			var typ string
			err := sc.Scan(&e.ID, &typ, &e.ExpID, &e.ExpVersion, &e.StateName, &e.SessionID, &e.FirstVisit, &e.CreatedAt)
			e.Type = EventType(typ)
			return e, err
		})
	})
}

func (s *pgStore) EventVersions(ctx context.Context, expID string) ([]int, error) {
	return repository.QueryMany(ctx, s.db,
		`SELECT DISTINCT exp_version FROM stats_events WHERE exp_id = $1 ORDER BY exp_version`,
		[]any{expID},
		scanVersion,
	)
}

func (s *pgStore) GetStats(ctx context.Context, expID string, version int) (*ExplorationStats, error) {
	st, err := repository.QueryOptional(ctx, s.db,
		`SELECT exp_id, exp_version, start_count, complete_count, state_hit_counts, checkpoint, last_updated
		FROM exploration_stats
		WHERE exp_id = $1 AND exp_version = $2`,
		[]any{expID, version},
		scanStats,
	)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return st, nil
}

func (s *pgStore) SaveStats(ctx context.Context, st *ExplorationStats, checkpoint int64) error {
	counts, err := json.Marshal(st.StateHitCounts)
	if err != nil {
		return fmt.Errorf("marshal state hit counts: %w", err)
	}

	args := []any{st.ExpID, st.ExpVersion, st.StartCount, st.CompleteCount, counts, st.Checkpoint, st.LastUpdated, checkpoint}

	if checkpoint == 0 {
		err = repository.ExecExpectOne(ctx, s.db,
			`INSERT INTO exploration_stats
				(exp_id, exp_version, start_count, complete_count, state_hit_counts, checkpoint, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (exp_id, exp_version) DO NOTHING`,
			args[:7]...,
		)
	} else {
		err = repository.ExecExpectOne(ctx, s.db,
			`UPDATE exploration_stats SET
				start_count = $3,
				complete_count = $4,
				state_hit_counts = $5,
				checkpoint = $6,
				last_updated = $7
			WHERE exp_id = $1 AND exp_version = $2 AND checkpoint = $8`,
			args...,
		)
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s v%d moved past checkpoint %d", ErrConflict, st.ExpID, st.ExpVersion, checkpoint)
	case err != nil && repository.IsRetryable(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case err != nil:
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (s *pgStore) StatsVersions(ctx context.Context, expID string) ([]int, error) {
	return repository.QueryMany(ctx, s.db,
		`SELECT exp_version FROM exploration_stats WHERE exp_id = $1 ORDER BY exp_version`,
		[]any{expID},
		scanVersion,
	)
}

func scanVersion(sc repository.Scanner) (int, error) {
	var v int
	err := sc.Scan(&v)
	return v, err
}

func scanStats(sc repository.Scanner) (ExplorationStats, error) {
	var st ExplorationStats
	var counts []byte
	if err := sc.Scan(
		&st.ExpID,
		&st.ExpVersion,
		&st.StartCount,
		&st.CompleteCount,
		&counts,
		&st.Checkpoint,
		&st.LastUpdated,
	); err != nil {
		return st, err
	}

	st.StateHitCounts = make(map[string]StateHitCounts)
	if err := json.Unmarshal(counts, &st.StateHitCounts); err != nil {
		return st, fmt.Errorf("decode state hit counts: %w", err)
	}
	return st, nil
}
