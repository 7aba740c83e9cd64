// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/infrastructure"
	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// Background systems (the session sweeper, the event sink) are registered
// with the infrastructure lifecycle.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime, err := NewRuntime(cfg, infra)
	if err != nil {
		return nil, err
	}

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	if err := domain.Sweeper.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("sweeper start failed: %w", err)
	}

	mux := http.NewServeMux()
	if err := registerRoutes(mux, domain, cfg, runtime); err != nil {
		return nil, err
	}

	m := module.New(cfg.API.BasePath, mux)
	m.Use(
		middleware.CORS(&cfg.API.CORS),
		middleware.Correlation(),
		middleware.Logger(runtime.Logger),
	)

	return m, nil
}
