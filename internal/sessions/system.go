// Package sessions stores workflow sessions, their per-stage status, and the
// business exceptions raised while they run.
package sessions

import (
	"context"
	"time"

	"github.com/JaimeStill/matchflow/pkg/pagination"
)

// System is the durable store for workflow sessions. Only the orchestrator
// writes; every other reader treats sessions as read-only.
type System interface {
	// Create persists a new session. Returns ErrDuplicate if the id exists.
	Create(ctx context.Context, s *Session) error
	// Read returns the session, or ErrNotFound when missing or expired.
	Read(ctx context.Context, sessionID string) (*Session, error)
	// List returns one page of unexpired sessions matching filters. page must
	// be normalized. Search matches documentId or correlationId.
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Session], error)
	// UpdateStage replaces one stage's status without touching other stages.
	// Returns ErrInvalidTransition when the new state would regress.
	UpdateStage(ctx context.Context, sessionID string, stage Stage, status StageStatus) error
	// SetStatus sets a non-terminal overall status.
	SetStatus(ctx context.Context, sessionID string, status OverallStatus) error
	// SetClassification records the final match classification.
	SetClassification(ctx context.Context, sessionID, classification string) error
	// AddTokenUsage adds usage to the session's running total.
	AddTokenUsage(ctx context.Context, sessionID string, usage TokenUsage) error
	// Finalize derives the terminal status and sets CompletedAt once.
	// Repeated calls return the same result.
	Finalize(ctx context.Context, sessionID string) (*Session, error)
	// AppendException records an exception against its session.
	AppendException(ctx context.Context, ex Exception) error
	// Exceptions returns the session's exceptions in ascending timestamp order.
	Exceptions(ctx context.Context, sessionID string) ([]Exception, error)
	// Sweep deletes sessions expired at now and returns the count removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}
