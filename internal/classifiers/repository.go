package classifiers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JaimeStill/tally/pkg/repository"
)

const recordColumns = `classifier_id, exp_id, exp_version_when_created, state_name,
		algorithm_id, cached_classifier_data, data_schema_version`

type pgStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by the classifiers table.
func NewPostgresStore(db *sql.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Install(ctx context.Context, r *Record) (*Record, error) {
	data, err := json.Marshal(r.CachedClassifierData)
	if err != nil {
		return nil, fmt.Errorf("marshal classifier data: %w", err)
	}

	superseded, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*Record, error) {
		old, err := repository.QueryOne(ctx, tx,
			`DELETE FROM classifiers
			WHERE exp_id = $1 AND state_name = $2
			RETURNING `+recordColumns,
			[]any{r.ExpID, r.StateName},
			scanRecord,
		)
		var prev *Record
		switch {
		case err == nil:
			prev = &old
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("remove current classifier: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO classifiers (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ClassifierID, r.ExpID, r.ExpVersionWhenCreated, r.StateName,
			r.AlgorithmID, data, r.DataSchemaVersion,
		); err != nil {
			return nil, fmt.Errorf("insert classifier: %w", err)
		}

		return prev, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return superseded, nil
}

func (s *pgStore) Find(ctx context.Context, id string) (*Record, error) {
	r, err := repository.QueryOne(ctx, s.db,
		`SELECT `+recordColumns+` FROM classifiers WHERE classifier_id = $1`,
		[]any{id},
		scanRecord,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &r, nil
}

func (s *pgStore) FindByState(ctx context.Context, expID, stateName string) (*Record, error) {
	r, err := repository.QueryOne(ctx, s.db,
		`SELECT `+recordColumns+` FROM classifiers WHERE exp_id = $1 AND state_name = $2`,
		[]any{expID, stateName},
		scanRecord,
	)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &r, nil
}

func (s *pgStore) ListByExploration(ctx context.Context, expID string) ([]Record, error) {
	records, err := repository.QueryMany(ctx, s.db,
		`SELECT `+recordColumns+` FROM classifiers WHERE exp_id = $1 ORDER BY state_name`,
		[]any{expID},
		scanRecord,
	)
	if err != nil {
		return nil, fmt.Errorf("list classifiers: %w", err)
	}
	return records, nil
}

func (s *pgStore) Delete(ctx context.Context, id string) error {
	err := repository.ExecExpectOne(ctx, s.db,
		"DELETE FROM classifiers WHERE classifier_id = $1",
		id,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicate)
}

func (s *pgStore) DeleteByExploration(ctx context.Context, expID string) ([]Record, error) {
	removed, err := repository.QueryMany(ctx, s.db,
		`DELETE FROM classifiers WHERE exp_id = $1 RETURNING `+recordColumns,
		[]any{expID},
		scanRecord,
	)
	if err != nil {
		return nil, fmt.Errorf("delete exploration classifiers: %w", err)
	}
	return removed, nil
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	var data []byte

	if err := s.Scan(
		&r.ClassifierID,
		&r.ExpID,
		&r.ExpVersionWhenCreated,
		&r.StateName,
		&r.AlgorithmID,
		&data,
		&r.DataSchemaVersion,
	); err != nil {
		return r, err
	}

	if err := json.Unmarshal(data, &r.CachedClassifierData); err != nil {
		return r, fmt.Errorf("unmarshal cached_classifier_data: %w", err)
	}
	return r, nil
}
