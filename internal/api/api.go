// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
	"github.com/JaimeStill/tally/pkg/middleware"
	"github.com/JaimeStill/tally/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware,
// backed by the Postgres stores of infra.Database.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, *Domain, error) {
	return NewModuleWithStores(cfg, infra, PostgresStores(infra.Database.Connection()))
}

// NewModuleWithStores is NewModule over explicit domain stores.
func NewModuleWithStores(cfg *config.Config, infra *infrastructure.Infrastructure, stores Stores) (*module.Module, *Domain, error) {
	runtime, err := NewRuntime(cfg, infra)
	if err != nil {
		return nil, nil, err
	}

	domain, err := NewDomain(cfg, runtime, stores)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m, err := module.New(cfg.API.BasePath, mux)
	if err != nil {
		return nil, nil, err
	}
	m.Use(middleware.Recover(runtime.Logger))
	m.Use(middleware.Logger(runtime.Logger))
	m.Use(runtime.Metrics.Middleware())
	m.Use(middleware.CORS(&cfg.API.CORS))

	return m, domain, nil
}
