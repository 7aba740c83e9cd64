package main

import (
	"context"
	"fmt"
	"time"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/infrastructure"
)

// Server owns the process-wide systems: infrastructure, the mounted
// modules, and the HTTP listener.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
}

// NewServer assembles every system from cfg without starting any of them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}

	router := modules.Router(newProbes(infra))
	infra.Logger.Debug("modules mounted", "prefixes", router.Prefixes())

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start registers infrastructure with the lifecycle coordinator and begins
// accepting connections. Readiness flips once every startup hook returns.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		start := time.Now()
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready", "took", time.Since(start))
	}()

	return nil
}

// Shutdown drains the coordinator, bounded by timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown", "timeout", timeout)
	return s.infra.Lifecycle.Shutdown(timeout)
}
