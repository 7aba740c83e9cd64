package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/agent"
	"github.com/JaimeStill/matchflow/pkg/lifecycle"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

// Invoker calls a stage agent. *agent.Client satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// Config holds the orchestration settings derived from application config.
type Config struct {
	Endpoints        map[sessions.Stage]string
	Retention        time.Duration
	AutoMatch        bool
	BatchConcurrency int
	MaxBatchSize     int
	IdempotencyTTL   time.Duration
}

// Runtime bundles everything a workflow execution depends on. It is
// constructed by higher-level composition code from Infrastructure and
// Domain systems. Archive, Idempotency, and Events are optional.
type Runtime struct {
	Store       sessions.System
	Idempotency sessions.Idempotency
	Agents      Invoker
	Events      events.Publisher
	Archive     storage.System
	Lifecycle   *lifecycle.Coordinator
	Logger      *slog.Logger
	Config      Config
	Now         func() time.Time
}

func (rt *Runtime) now() time.Time {
	if rt.Now != nil {
		return rt.Now().UTC()
	}
	return time.Now().UTC()
}

func (rt *Runtime) publish(ctx context.Context, sessionID string, p events.Payload) {
	if rt.Events != nil {
		rt.Events.Publish(ctx, sessionID, p)
	}
}
