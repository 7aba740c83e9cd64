package api

import (
	"fmt"
	"time"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/internal/workflow"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Sessions sessions.System
	Workflow workflow.System
	Sweeper  *sessions.Sweeper
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	store, idem, err := newStore(cfg, runtime)
	if err != nil {
		return nil, err
	}

	if !cfg.Workflow.Idempotency {
		idem = nil
	}

	endpoints := make(map[sessions.Stage]string, len(cfg.Agents.Endpoints))
	for stage, url := range cfg.Agents.Endpoints {
		endpoints[sessions.Stage(stage)] = url
	}

	wf := workflow.New(&workflow.Runtime{
		Store:       store,
		Idempotency: idem,
		Agents:      runtime.Agent,
		Events:      runtime.Broadcaster,
		Archive:     runtime.Storage,
		Lifecycle:   runtime.Lifecycle,
		Logger:      runtime.Logger,
		Config: workflow.Config{
			Endpoints:        endpoints,
			Retention:        cfg.Workflow.RetentionDuration(),
			AutoMatch:        !cfg.Workflow.ManualMatch,
			BatchConcurrency: cfg.Workflow.BatchConcurrency,
			MaxBatchSize:     cfg.Workflow.MaxBatchSize,
			IdempotencyTTL:   cfg.Workflow.IdempotencyTTLDuration(),
		},
		Now: time.Now,
	})

	return &Domain{
		Sessions: store,
		Workflow: wf,
		Sweeper: sessions.NewSweeper(
			store,
			cfg.Workflow.SweepIntervalDuration(),
			runtime.Logger,
			time.Now,
		),
	}, nil
}

func newStore(cfg *config.Config, runtime *Runtime) (sessions.System, sessions.Idempotency, error) {
	switch cfg.Store.Provider {
	case config.StoreProviderPostgres:
		db := runtime.Database.Connection()
		return sessions.New(db, runtime.Logger, time.Now),
			sessions.NewIdempotency(db, runtime.Logger, time.Now),
			nil
	case config.StoreProviderFirestore:
		return sessions.NewFirestore(runtime.Firestore, cfg.Store.Collection, runtime.Logger, time.Now),
			sessions.NewFirestoreIdempotency(runtime.Firestore, cfg.Store.Collection+"_idempotency", time.Now),
			nil
	case config.StoreProviderMemory:
		return sessions.NewMemory(runtime.Logger, time.Now),
			sessions.NewMemoryIdempotency(time.Now),
			nil
	default:
		return nil, nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
}
