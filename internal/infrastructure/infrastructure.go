// Package infrastructure assembles the systems every module depends on:
// lifecycle coordination, logging, metrics, the database, the optional
// classifier archive, and the calculation output cache.
package infrastructure

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/pkg/cache"
	"github.com/JaimeStill/tally/pkg/database"
	"github.com/JaimeStill/tally/pkg/lifecycle"
	"github.com/JaimeStill/tally/pkg/logging"
	"github.com/JaimeStill/tally/pkg/metrics"
	"github.com/JaimeStill/tally/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Storage is nil when the classifier archive is disabled. Cache falls back
// to an in-process cache when Redis is not enabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Metrics   *metrics.Registry
	Database  database.System
	Storage   storage.System
	Cache     cache.System

	log *logging.Logger
}

// New creates an Infrastructure from the application configuration, logging
// to stderr. Systems are initialized but not started; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	return NewWithConsole(cfg, os.Stderr)
}

// NewWithConsole is New with an explicit console log destination.
func NewWithConsole(cfg *config.Config, console io.Writer) (*Infrastructure, error) {
	log := logging.New(&cfg.Logging, console)
	logger := log.With("service", "tally", "env", cfg.Env())

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	var store storage.System
	if cfg.Storage.Enabled {
		store, err = storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
	}

	var c cache.System
	if cfg.Cache.Enabled {
		c, err = cache.New(&cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
	} else {
		c = cache.NewMemory(cfg.Cache.TTLDuration())
	}

	return &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Metrics:   metrics.New(),
		Database:  db,
		Storage:   store,
		Cache:     c,
		log:       log,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator
// and adds the database as a readiness check.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	i.Lifecycle.Check("database", i.Database)

	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}

	if err := i.Cache.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("cache start failed: %w", err)
	}

	i.Lifecycle.OnShutdown(func() {
		<-i.Lifecycle.Context().Done()
		i.log.Sync()
	})
	return nil
}

// Close flushes and releases the process logger.
func (i *Infrastructure) Close() error {
	return i.log.Close()
}
