package sessions

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/matchflow/pkg/lifecycle"
)

// Sweeper periodically deletes expired sessions from a store.
type Sweeper struct {
	store    System
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(store System, interval time.Duration, logger *slog.Logger, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger.With("system", "sweeper"),
		now:      now,
	}
}

// Start runs the sweep loop until the coordinator shuts down.
func (s *Sweeper) Start(lc *lifecycle.Coordinator) error {
	if s.interval <= 0 {
		s.logger.Info("session sweeper disabled")
		return nil
	}

	lc.OnShutdown(func() {
		s.run(lc.Context())
		s.logger.Info("session sweeper stopped")
	})
	return nil
}

// SweepOnce deletes sessions expired at the current time.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
	return n, nil
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
