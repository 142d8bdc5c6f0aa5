package api

import (
	"net/http"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/pkg/middleware"
	"github.com/JaimeStill/tally/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	groups := []routes.Group{
		{
			Middleware: []routes.Middleware{middleware.BodyLimit(cfg.API.MaxBodyBytes())},
			Children: []routes.Group{
				domain.Stats.Handler().Routes(),
				domain.Classifiers.Handler().Routes(),
			},
		},
	}

	if runtime.Storage != nil {
		groups = append(groups, newArchiveHandler(runtime.Storage, cfg.API.Pagination, runtime.Logger).routes())
	}

	routes.Register(mux, groups...)
}
