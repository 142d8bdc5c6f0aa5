package main

import (
	"net/http"

	"github.com/JaimeStill/tally/internal/api"
	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
	"github.com/JaimeStill/tally/pkg/handlers"
	"github.com/JaimeStill/tally/pkg/lifecycle"
	"github.com/JaimeStill/tally/pkg/module"
)

// Modules are the mounted HTTP modules and the domain systems behind them.
type Modules struct {
	API    *module.Module
	Domain *api.Domain
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, domain, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{
		API:    apiModule,
		Domain: domain,
	}, nil
}

func (m *Modules) Mount(router *module.Router) error {
	return router.Mount(m.API)
}

func (m *Modules) Start(lc *lifecycle.Coordinator) error {
	return m.Domain.Start(lc)
}

type readiness struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks"`
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	router.HandleNative("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readiness{Status: "ready", Checks: infra.Lifecycle.Status()}
		if !infra.Lifecycle.Ready() {
			body.Status = "not ready"
			handlers.RespondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		handlers.RespondJSON(w, http.StatusOK, body)
	}))

	router.HandleNative("GET /metrics", infra.Metrics.Handler())

	return router
}
