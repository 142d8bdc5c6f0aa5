package stats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CalculationOutput is the published result of one calculation for one state,
// aggregated over every version of the exploration.
type CalculationOutput struct {
	ExpID         string          `json:"exp_id"`
	StateName     string          `json:"state_name"`
	CalculationID string          `json:"calculation_id"`
	Output        json.RawMessage `json:"calculation_output"`
	PassID        uuid.UUID       `json:"pass_id"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Store persists calculation outputs, visit events, and exploration stats.
type Store interface {
	// PutOutputs replaces the given outputs in one atomic write. Readers see
	// either the previous outputs or all of the new ones.
	PutOutputs(ctx context.Context, outputs []CalculationOutput) error
	// GetOutput returns nil with a nil error when no pass has produced the output yet.
	GetOutput(ctx context.Context, expID, stateName, calculationID string) (*CalculationOutput, error)

	// RecordEvent stores e, assigning its ID and CreatedAt.
	RecordEvent(ctx context.Context, e *Event) error
	// EventsAfter returns up to limit events of an exploration version with IDs
	// greater than after, in ID order. No event recorded later may receive an
	// ID at or below the largest one returned.
	EventsAfter(ctx context.Context, expID string, version int, after int64, limit int) ([]Event, error)
	// EventVersions lists the versions of an exploration that have events, ascending.
	EventVersions(ctx context.Context, expID string) ([]int, error)

	// GetStats returns nil with a nil error when the version has no stats yet.
	GetStats(ctx context.Context, expID string, version int) (*ExplorationStats, error)
	// SaveStats writes s only if the stored checkpoint still equals checkpoint.
	// Otherwise it returns ErrConflict and leaves the stored stats unchanged.
	SaveStats(ctx context.Context, s *ExplorationStats, checkpoint int64) error
	// StatsVersions lists the versions of an exploration that have stats, ascending.
	StatsVersions(ctx context.Context, expID string) ([]int, error)
}

type outputKey struct {
	expID         string
	stateName     string
	calculationID string
}

type statsKey struct {
	expID   string
	version int
}
