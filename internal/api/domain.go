package api

import (
	"database/sql"
	"fmt"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/classifiers"
	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/stats"
	"github.com/JaimeStill/tally/pkg/classifier"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

// Stores are the persistence backends of the domain systems.
type Stores struct {
	Answers     answers.Store
	Classifiers classifiers.Store
	Stats       stats.Store
}

// PostgresStores returns Stores backed by db.
func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Answers:     answers.NewPostgresStore(db),
		Classifiers: classifiers.NewPostgresStore(db),
		Stats:       stats.NewPostgresStore(db),
	}
}

// MemoryStores returns in-process Stores.
func MemoryStores() Stores {
	return Stores{
		Answers:     answers.NewMemoryStore(),
		Classifiers: classifiers.NewMemoryStore(),
		Stats:       stats.NewMemoryStore(),
	}
}

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Answers     *answers.Log
	Classifiers classifiers.System
	Stats       stats.System
}

// NewDomain creates all domain systems from the API runtime. Calculation
// outputs are read through the runtime cache.
func NewDomain(cfg *config.Config, runtime *Runtime, stores Stores) (*Domain, error) {
	log, err := answers.NewLog(stores.Answers, cfg.Answers, runtime.Metrics, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}

	classifiersSystem, err := classifiers.New(
		stores.Classifiers,
		classifier.NewDefaultRegistry(),
		runtime.Catalog,
		runtime.Storage,
		runtime.Metrics,
		runtime.Logger,
		cfg.Classifiers,
	)
	if err != nil {
		return nil, fmt.Errorf("classifiers: %w", err)
	}

	statsSystem, err := stats.New(
		log,
		runtime.Catalog,
		stats.NewCachedStore(stores.Stats, runtime.Cache, cfg.Stats.OutputCacheTTLDuration(), runtime.Logger),
		classifiersSystem,
		runtime.Metrics,
		runtime.Logger,
		cfg.Stats,
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	return &Domain{
		Answers:     log,
		Classifiers: classifiersSystem,
		Stats:       statsSystem,
	}, nil
}

// Start launches the classifier trainer and the aggregation scheduler.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.Classifiers.Start(lc); err != nil {
		return fmt.Errorf("classifiers start failed: %w", err)
	}
	if err := d.Stats.Start(lc); err != nil {
		return fmt.Errorf("stats start failed: %w", err)
	}
	return nil
}
