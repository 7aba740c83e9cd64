package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/internal/workflow"
	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/openapi"
	"github.com/JaimeStill/matchflow/pkg/routes"
)

const specPath = "/openapi.json"

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	groups := []routes.Group{
		workflow.NewHandler(
			domain.Workflow,
			runtime.Logger,
			cfg.API.MaxRequestSizeBytes(),
		).Routes(),
		sessions.NewHandler(domain.Sessions, runtime.Logger, cfg.API.Pagination).Routes(),
		events.NewHandler(
			runtime.Broadcaster,
			domain.Sessions,
			middleware.OriginHosts(cfg.API.CORS.Origins),
			runtime.Logger,
		).Routes(),
	}

	if runtime.Storage != nil {
		groups = append(groups, newOutputsHandler(
			runtime.Storage,
			domain.Sessions,
			runtime.Logger,
		).routes())
	}

	spec, err := buildSpec(cfg, groups)
	if err != nil {
		return err
	}
	groups = append(groups, routes.Group{
		Routes: []routes.Route{
			{Method: "GET", Pattern: specPath, Handler: openapi.ServeSpec(spec)},
		},
	})

	routes.Register(mux, groups...)
	runtime.Logger.Debug("routes registered", "patterns", routes.Patterns(groups...))
	return nil
}

func buildSpec(cfg *config.Config, groups []routes.Group) ([]byte, error) {
	spec := cfg.API.OpenAPI.Build(cfg.Version, cfg.API.BasePath)
	spec.Components.AddSchemas(sessions.Schemas())
	spec.Components.AddSchemas(workflow.Schemas())
	spec.Components.AddSchemas(events.Schemas())

	routes.Describe(spec, groups...)

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi document: %w", err)
	}
	return data, nil
}
