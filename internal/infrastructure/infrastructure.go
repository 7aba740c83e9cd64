// Package infrastructure provides core service initialization for application startup.
// It assembles the dependencies (logging, session persistence, archive storage)
// that the workflow, sessions, and events systems require.
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/pkg/database"
	"github.com/JaimeStill/matchflow/pkg/lifecycle"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// Database is nil unless the status store is postgres, Firestore is nil
// unless it is firestore, and Storage is nil when the archive is disabled.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Firestore *firestore.Client
	Storage   storage.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    NewLogger(&cfg.Logging, os.Stderr),
	}

	switch cfg.Store.Provider {
	case config.StoreProviderPostgres:
		db, err := database.New(&cfg.Database, infra.Logger)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		infra.Database = db
	case config.StoreProviderFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("firestore init failed: %w", err)
		}
		infra.Firestore = client
	}

	store, err := storage.New(ctx, &cfg.Storage, infra.Logger)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		infra.Logger.Info("stage output archive disabled")
	case err != nil:
		return nil, fmt.Errorf("storage init failed: %w", err)
	default:
		infra.Storage = store
	}

	return infra, nil
}

// NewLogger builds the root logger from the logging config.
func NewLogger(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Ready reports whether every named check passes.
func (i *Infrastructure) Ready() bool {
	for _, ok := range i.Checks() {
		if !ok {
			return false
		}
	}
	return true
}

// Checks reports readiness per dependency. The lifecycle check passes once
// startup hooks complete and fails again while draining.
func (i *Infrastructure) Checks() map[string]bool {
	checks := map[string]bool{
		"lifecycle": i.Lifecycle.Ready(),
	}
	for name, c := range i.checkers() {
		checks[name] = c.Ready()
	}
	return checks
}

func (i *Infrastructure) checkers() map[string]lifecycle.ReadinessChecker {
	out := make(map[string]lifecycle.ReadinessChecker)
	if i.Database != nil {
		out["database"] = i.Database
	}
	return out
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
	}
	if i.Firestore != nil {
		client := i.Firestore
		i.Lifecycle.OnShutdown(func() {
			<-i.Lifecycle.Context().Done()
			if err := client.Close(); err != nil {
				i.Logger.Error("firestore close failed", "error", err)
			}
		})
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}
