package api

import (
	"context"
	"fmt"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/internal/infrastructure"
)

// Runtime extends Infrastructure with the exploration catalog and a
// module-scoped logger.
type Runtime struct {
	*infrastructure.Infrastructure
	Catalog *explorations.Catalog
}

// NewRuntime loads the exploration catalog from cfg.Stats.ExplorationsDir.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) (*Runtime, error) {
	catalog, err := explorations.LoadDir(cfg.Stats.ExplorationsDir)
	if err != nil {
		return nil, fmt.Errorf("load explorations: %w", err)
	}

	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	ids, _ := catalog.IDs(context.Background())
	scoped.Logger.Info("exploration catalog loaded", "dir", cfg.Stats.ExplorationsDir, "explorations", len(ids))

	return &Runtime{
		Infrastructure: &scoped,
		Catalog:        catalog,
	}, nil
}
