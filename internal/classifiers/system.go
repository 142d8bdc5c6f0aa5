package classifiers

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/lifecycle"
)

// System defines the public contract for classifier domain operations.
type System interface {
	Handler() *Handler

	// Start runs the background trainer until the coordinator shuts down.
	Start(lc *lifecycle.Coordinator) error

	Find(ctx context.Context, id string) (*Record, error)
	FindByState(ctx context.Context, expID, stateName string) (*Record, error)

	// Train builds a model for the state of the latest exploration version and
	// installs it, superseding the state's previous classifier.
	// An empty algorithmID selects the configured default.
	Train(ctx context.Context, expID, stateName, algorithmID string) (*Record, error)

	// Enqueue schedules Train on the background trainer without blocking.
	Enqueue(expID, stateName, algorithmID string) (*Job, error)
	Job(id uuid.UUID) (*Job, error)

	// Classify predicts a label for each document using the state's installed model.
	// Returns ErrNotFound when the state has no classifier.
	Classify(ctx context.Context, expID, stateName string, docs []string) ([]string, error)

	Delete(ctx context.Context, id string) error
	DeleteByExploration(ctx context.Context, expID string) error
}
