package main

import (
	"net/http"

	"github.com/JaimeStill/matchflow/internal/api"
	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/infrastructure"
	"github.com/JaimeStill/matchflow/pkg/handlers"
	"github.com/JaimeStill/matchflow/pkg/module"
)

// Modules holds the HTTP modules mounted on the root router.
type Modules struct {
	API *module.Module
}

// NewModules builds every module from the shared infrastructure.
func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}
	return &Modules{API: apiModule}, nil
}

// Router returns the root router with the probes registered natively and
// every module mounted under its prefix.
func (m *Modules) Router(p *probes) *module.Router {
	router := module.NewRouter()
	router.HandleNative("GET /healthz", p.health)
	router.HandleNative("GET /readyz", p.ready)
	router.Mount(m.API)
	return router
}

type readiness interface {
	Checks() map[string]bool
}

// probes answers liveness and readiness checks for the orchestrator.
type probes struct {
	infra readiness
}

func newProbes(infra readiness) *probes {
	return &probes{infra: infra}
}

type probeStatus struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

func (p *probes) health(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, probeStatus{Status: "ok"})
}

// ready returns 503 with the failing checks while any dependency is
// unavailable.
func (p *probes) ready(w http.ResponseWriter, r *http.Request) {
	checks := p.infra.Checks()
	for _, ok := range checks {
		if !ok {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, probeStatus{Status: "not ready", Checks: checks})
			return
		}
	}
	handlers.RespondJSON(w, http.StatusOK, probeStatus{Status: "ready", Checks: checks})
}
