// Package workflow drives documents through the adapt, extract, match, and
// exceptionHandle stages. Every state change is written to the session store
// before it is published to observers.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/middleware"
)

const (
	defaultBatchConcurrency = 8
	defaultMaxBatchSize     = 100
)

// System is the orchestration surface used by the HTTP handler.
type System interface {
	// Submit creates a session and runs it in the background. The returned
	// session is the initial snapshot.
	Submit(ctx context.Context, sub Submission) (*sessions.Session, error)
	// Run creates a session and executes it to completion on the caller's goroutine.
	Run(ctx context.Context, sub Submission) (*sessions.Session, error)
	// SubmitBatch submits each document, reporting per-document outcomes.
	// Documents without a correlation id each receive a fresh one.
	SubmitBatch(ctx context.Context, batch BatchSubmission) ([]BatchResult, error)
	// InvokeMatching runs match, and exceptionHandle when required, for a
	// session that stopped after extract.
	InvokeMatching(ctx context.Context, sessionID string) (*Invocation, error)
	// Finalize derives the terminal status and publishes RESULT_AVAILABLE.
	// It is safe to call more than once.
	Finalize(ctx context.Context, sessionID string) (*sessions.Session, error)
}

type orchestrator struct {
	rt       *Runtime
	logger   *slog.Logger
	flight   singleflight.Group
	noCache  atomic.Bool
	// active holds the ids of sessions with an execution in flight.
	active sync.Map
}

// New creates the orchestrator over rt.
func New(rt *Runtime) System {
	if rt.Config.BatchConcurrency <= 0 {
		rt.Config.BatchConcurrency = defaultBatchConcurrency
	}
	if rt.Config.MaxBatchSize <= 0 {
		rt.Config.MaxBatchSize = defaultMaxBatchSize
	}
	if rt.Config.IdempotencyTTL <= 0 {
		rt.Config.IdempotencyTTL = sessions.DefaultRetention
	}
	return &orchestrator{
		rt:     rt,
		logger: rt.Logger.With("system", "workflow"),
	}
}

func (o *orchestrator) Submit(ctx context.Context, sub Submission) (*sessions.Session, error) {
	return o.submit(ctx, sub, func(s *sessions.Session) error {
		o.claim(s.SessionID)
		started := o.rt.Lifecycle.Go(func() {
			defer o.release(s.SessionID)
			runCtx := middleware.WithCorrelationID(o.rt.Lifecycle.Context(), s.CorrelationID)
			o.execute(runCtx, s, sessions.Pipeline(), false)
		})
		if !started {
			o.release(s.SessionID)
			o.abandon(s)
			return ErrUnavailable
		}
		return nil
	})
}

func (o *orchestrator) Run(ctx context.Context, sub Submission) (*sessions.Session, error) {
	var final *sessions.Session
	var runErr error

	created, err := o.submit(ctx, sub, func(s *sessions.Session) error {
		o.claim(s.SessionID)
		defer o.release(s.SessionID)
		final, runErr = o.execute(ctx, s, sessions.Pipeline(), false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if final == nil && runErr == nil {
		return created, nil
	}
	return final, runErr
}

func (o *orchestrator) SubmitBatch(ctx context.Context, batch BatchSubmission) ([]BatchResult, error) {
	n := len(batch.Documents)
	if n == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrInvalidSubmission)
	}
	if n > o.rt.Config.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", ErrInvalidSubmission, n, o.rt.Config.MaxBatchSize)
	}

	results := make([]BatchResult, n)

	var g errgroup.Group
	g.SetLimit(o.rt.Config.BatchConcurrency)

	for i, sub := range batch.Documents {
		g.Go(func() error {
			res := BatchResult{Index: i, DocumentID: sub.DocumentID}
			s, err := o.Submit(middleware.WithCorrelationID(ctx, uuid.NewString()), sub)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Session = s
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	o.logger.Info("batch submitted", "documents", n, "batch_correlation_id", middleware.CorrelationID(ctx))
	return results, nil
}

func (o *orchestrator) InvokeMatching(ctx context.Context, sessionID string) (*Invocation, error) {
	if o.rt.Config.AutoMatch {
		return nil, fmt.Errorf("%w: automatic matching is enabled", ErrInvalidState)
	}
	if !o.claim(sessionID) {
		return nil, fmt.Errorf("%w: session %s is already executing", ErrInvalidState, sessionID)
	}

	s, err := o.rt.Store.Read(ctx, sessionID)
	if err != nil {
		o.release(sessionID)
		return nil, err
	}

	if !awaitingMatch(s) {
		o.release(sessionID)
		return nil, fmt.Errorf("%w: match requires extract success and match pending", ErrInvalidState)
	}

	inv := &Invocation{
		InvocationID: uuid.NewString(),
		SessionID:    sessionID,
		Status:       "initiated",
	}

	started := o.rt.Lifecycle.Go(func() {
		defer o.release(sessionID)
		runCtx := middleware.WithCorrelationID(o.rt.Lifecycle.Context(), s.CorrelationID)
		o.execute(runCtx, s, []sessions.Stage{sessions.StageMatch, sessions.StageExceptionHandle}, true)
	})
	if !started {
		o.release(sessionID)
		return nil, ErrUnavailable
	}

	o.logger.Info("matching invoked",
		"session_id", sessionID,
		"correlation_id", s.CorrelationID,
		"invocation_id", inv.InvocationID,
	)
	return inv, nil
}

func (o *orchestrator) Finalize(ctx context.Context, sessionID string) (*sessions.Session, error) {
	s, err := o.rt.Store.Finalize(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: finalize: %w", ErrStoreWrite, err)
	}

	o.rt.publish(ctx, sessionID, events.Snapshot(s))
	o.rt.publish(ctx, sessionID, events.Result(s))
	return s, nil
}

// claim marks sessionID as executing. It reports false when another
// execution already holds the session.
func (o *orchestrator) claim(sessionID string) bool {
	_, loaded := o.active.LoadOrStore(sessionID, struct{}{})
	return !loaded
}

func (o *orchestrator) release(sessionID string) {
	o.active.Delete(sessionID)
}

// awaitingMatch reports whether s stopped after extract and has not started match.
func awaitingMatch(s *sessions.Session) bool {
	return !s.OverallStatus.Terminal() &&
		s.Stages[sessions.StageExtract].Status == sessions.StateSuccess &&
		s.Stages[sessions.StageMatch].Status == sessions.StatePending
}

// submit validates sub, resolves the correlation id, collapses duplicate
// submissions, and creates the session. start is invoked once for a newly
// created session.
func (o *orchestrator) submit(ctx context.Context, sub Submission, start func(*sessions.Session) error) (*sessions.Session, error) {
	if sub.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", ErrInvalidSubmission)
	}
	if !sub.SourceType.Valid() {
		return nil, fmt.Errorf("%w: sourceType must be BANK or COUNTERPARTY", ErrInvalidSubmission)
	}

	if sub.CorrelationID == "" {
		sub.CorrelationID = middleware.CorrelationID(ctx)
		if sub.CorrelationID == "" {
			sub.CorrelationID = uuid.NewString()
		}
		return o.create(ctx, sub, start)
	}

	key := idempotencyKey(sub)
	v, err, _ := o.flight.Do(key, func() (any, error) {
		if existing := o.lookup(ctx, key); existing != nil {
			return existing, nil
		}

		s, err := o.create(ctx, sub, start)
		if err != nil {
			return nil, err
		}
		o.remember(ctx, key, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sessions.Session), nil
}

func (o *orchestrator) create(ctx context.Context, sub Submission, start func(*sessions.Session) error) (*sessions.Session, error) {
	s := sessions.NewSession(sessions.CreateCommand{
		SessionID:     uuid.NewString(),
		CorrelationID: sub.CorrelationID,
		DocumentID:    sub.DocumentID,
		SourceType:    sub.SourceType,
		CreatedAt:     o.rt.now(),
		Retention:     o.rt.Config.Retention,
	})

	if err := o.rt.Store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrStoreWrite, err)
	}

	o.logger.Info("session created",
		"session_id", s.SessionID,
		"correlation_id", s.CorrelationID,
		"document_id", s.DocumentID,
		"source_type", s.SourceType,
	)
	snapshot := s.Clone()
	o.rt.publish(ctx, s.SessionID, events.Snapshot(snapshot.Clone()))

	if err := start(s); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (o *orchestrator) lookup(ctx context.Context, key string) *sessions.Session {
	if o.rt.Idempotency == nil || o.noCache.Load() {
		return nil
	}

	sessionID, ok, err := o.rt.Idempotency.Lookup(ctx, key)
	if err != nil {
		o.noCache.Store(true)
		o.logger.Warn("idempotency cache disabled", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	s, err := o.rt.Store.Read(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			o.logger.Warn("idempotent session read failed", "session_id", sessionID, "error", err)
		}
		return nil
	}

	o.logger.Info("duplicate submission", "session_id", s.SessionID, "correlation_id", s.CorrelationID)
	return s
}

func (o *orchestrator) remember(ctx context.Context, key string, s *sessions.Session) {
	if o.rt.Idempotency == nil || o.noCache.Load() {
		return
	}

	expires := s.CreatedAt.Add(o.rt.Config.IdempotencyTTL)
	if err := o.rt.Idempotency.Remember(ctx, key, s.SessionID, expires); err != nil {
		o.logger.Warn("idempotency remember failed", "session_id", s.SessionID, "error", err)
	}
}

// abandon finalizes a session that was created but could not be started.
func (o *orchestrator) abandon(s *sessions.Session) {
	ctx := context.WithoutCancel(o.rt.Lifecycle.Context())
	if _, err := o.Finalize(ctx, s.SessionID); err != nil {
		o.logger.Error("abandon session failed", "session_id", s.SessionID, "error", err)
	}
}

func idempotencyKey(sub Submission) string {
	sum := sha256.Sum256([]byte(sub.DocumentID + "|" + string(sub.SourceType) + "|" + sub.CorrelationID))
	return hex.EncodeToString(sum[:])
}
