// Package database provides PostgreSQL connection management with lifecycle coordination.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// ErrNotReady is returned by Ping when the database cannot be reached.
var ErrNotReady = errors.New("database not ready")

// System manages database connections and lifecycle coordination.
type System interface {
	lifecycle.ReadinessChecker
	// Connection returns the underlying database connection pool.
	Connection() *sql.DB
	// Ping verifies the connection, updating readiness. Returns ErrNotReady
	// wrapping the driver error on failure.
	Ping(ctx context.Context) error
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn           *sql.DB
	logger         *slog.Logger
	connTimeout    time.Duration
	healthInterval time.Duration
	ready          atomic.Bool
}

// New creates a database system with the given configuration.
// It calls sql.Open to validate the DSN and configure pool parameters,
// but does not establish a connection until Start is called.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:           db,
		logger:         logger.With("system", "database"),
		connTimeout:    cfg.ConnTimeoutDuration(),
		healthInterval: cfg.HealthIntervalDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ready() bool {
	return d.ready.Load()
}

func (d *database) Ping(ctx context.Context) error {
	if d.connTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.connTimeout)
		defer cancel()
	}

	if err := d.conn.PingContext(ctx); err != nil {
		d.ready.Store(false)
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	d.ready.Store(true)
	return nil
}

// Start pings once during startup, then re-pings every health interval until
// shutdown so readiness follows the pool rather than the first attempt.
func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() {
		if err := d.Ping(lc.Context()); err != nil {
			d.logger.Error("database ping failed", "error", err)
			return
		}
		d.logger.Info("database connection established")
	})

	lc.OnShutdown(func() {
		d.monitor(lc.Context())

		d.ready.Store(false)
		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}
		d.logger.Info("database connection closed")
	})

	return nil
}

// monitor re-pings until ctx ends, logging only readiness transitions.
func (d *database) monitor(ctx context.Context) {
	if d.healthInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(d.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			was := d.Ready()
			err := d.Ping(ctx)
			switch {
			case err != nil && was && ctx.Err() == nil:
				d.logger.Warn("database unreachable", "error", err)
			case err == nil && !was:
				d.logger.Info("database connection recovered")
			}
		}
	}
}
