package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/matchflow/pkg/pagination"
	"github.com/JaimeStill/matchflow/pkg/query"
	"github.com/JaimeStill/matchflow/pkg/repository"
)

var storeErrors = repository.Errors{NotFound: ErrNotFound, Duplicate: ErrDuplicate}

type repo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a PostgreSQL-backed session store.
func New(db *sql.DB, logger *slog.Logger, now func() time.Time) System {
	if now == nil {
		now = time.Now
	}
	return &repo{
		db:     db,
		logger: logger.With("system", "sessions", "provider", "postgres"),
		now:    now,
	}
}

func (r *repo) Create(ctx context.Context, s *Session) error {
	q := `
		INSERT INTO workflow_sessions (
			session_id, correlation_id, document_id, source_type, overall_status,
			stages, created_at, updated_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, q,
		s.SessionID,
		s.CorrelationID,
		s.DocumentID,
		s.SourceType,
		s.OverallStatus,
		repository.NewJSON(s.Stages),
		s.CreatedAt,
		s.UpdatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return storeErrors.Map(err)
	}
	return nil
}

func (r *repo) Read(ctx context.Context, sessionID string) (*Session, error) {
	q := `SELECT ` + sessionColumns + `
		FROM workflow_sessions
		WHERE session_id = $1 AND expires_at > $2`

	s, err := repository.QueryOne(ctx, r.db, q, []any{sessionID, r.now()}, scanSession)
	if err != nil {
		return nil, storeErrors.Map(err)
	}
	return &s, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Session], error) {
	qb := query.
		NewBuilder(projection, defaultSort).
		Where("expiresAt", ">", r.now()).
		WhereSearch(page.Search, searchFields...)

	filters.Apply(qb)
	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanSession)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) UpdateStage(ctx context.Context, sessionID string, stage Stage, status StageStatus) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStage, stage)
	}

	status.SubSteps = TrimDepth(status.SubSteps, MaxSubStepDepth)
	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		var current repository.JSON[StageStatus]
		err := tx.QueryRowContext(ctx, `
			SELECT stages -> $2
			FROM workflow_sessions
			WHERE session_id = $1 AND expires_at > $3
			FOR UPDATE`,
			sessionID, string(stage), r.now(),
		).Scan(&current)
		if err != nil {
			return struct{}{}, err
		}

		if !CanTransition(current.V.Status, status.Status) {
			return struct{}{}, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, stage, current.V.Status, status.Status)
		}

		return struct{}{}, repository.ExecExpectOne(ctx, tx, `
			UPDATE workflow_sessions
			SET stages = jsonb_set(stages, ARRAY[$2]::text[], $3::jsonb), updated_at = $4
			WHERE session_id = $1`,
			sessionID, string(stage), repository.NewJSON(status), r.now().UTC(),
		)
	})

	return storeErrors.Map(err)
}

func (r *repo) SetStatus(ctx context.Context, sessionID string, status OverallStatus) error {
	if status.Terminal() {
		return fmt.Errorf("%w: overall status %s is set by finalize", ErrInvalidTransition, status)
	}

	err := repository.ExecExpectOne(ctx, r.db, `
		UPDATE workflow_sessions
		SET overall_status = $2, updated_at = $3
		WHERE session_id = $1
			AND expires_at > $3
			AND overall_status NOT IN ('completed', 'failed')`,
		sessionID, status, r.now().UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		if s, rerr := r.Read(ctx, sessionID); rerr == nil {
			return fmt.Errorf("%w: overall %s -> %s", ErrInvalidTransition, s.OverallStatus, status)
		}
	}
	return storeErrors.Map(err)
}

func (r *repo) SetClassification(ctx context.Context, sessionID, classification string) error {
	err := repository.ExecExpectOne(ctx, r.db, `
		UPDATE workflow_sessions
		SET classification = $2, updated_at = $3
		WHERE session_id = $1 AND expires_at > $3`,
		sessionID, classification, r.now().UTC(),
	)
	return storeErrors.Map(err)
}

func (r *repo) AddTokenUsage(ctx context.Context, sessionID string, usage TokenUsage) error {
	err := repository.ExecExpectOne(ctx, r.db, `
		UPDATE workflow_sessions
		SET token_usage = jsonb_build_object(
				'inputTokens', COALESCE((token_usage->>'inputTokens')::bigint, 0) + $2,
				'outputTokens', COALESCE((token_usage->>'outputTokens')::bigint, 0) + $3,
				'totalTokens', COALESCE((token_usage->>'totalTokens')::bigint, 0) + $4
			),
			updated_at = $5
		WHERE session_id = $1 AND expires_at > $5`,
		sessionID, usage.InputTokens, usage.OutputTokens, usage.TotalTokens, r.now().UTC(),
	)
	return storeErrors.Map(err)
}

func (r *repo) Finalize(ctx context.Context, sessionID string) (*Session, error) {
	s, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Session, error) {
		q := `SELECT ` + sessionColumns + `
			FROM workflow_sessions
			WHERE session_id = $1 AND expires_at > $2
			FOR UPDATE`

		s, err := repository.QueryOne(ctx, tx, q, []any{sessionID, r.now()}, scanSession)
		if err != nil {
			return s, err
		}

		if s.OverallStatus.Terminal() && s.CompletedAt != nil {
			return s, nil
		}

		s.finalize(r.now())

		err = repository.ExecExpectOne(ctx, tx, `
			UPDATE workflow_sessions
			SET overall_status = $2,
				completed_at = COALESCE(completed_at, $3),
				updated_at = $4
			WHERE session_id = $1`,
			sessionID, s.OverallStatus, s.CompletedAt, s.UpdatedAt,
		)
		return s, err
	})
	if err != nil {
		return nil, storeErrors.Map(err)
	}

	r.logger.Info("session finalized", "session_id", sessionID, "status", s.OverallStatus)
	return &s, nil
}

func (r *repo) AppendException(ctx context.Context, ex Exception) error {
	err := repository.ExecExpectOne(ctx, r.db, `
		INSERT INTO workflow_exceptions (`+exceptionColumns+`)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE EXISTS (
			SELECT 1 FROM workflow_sessions WHERE session_id = $2 AND expires_at > $8
		)`,
		ex.ID, ex.SessionID, ex.Severity, ex.Message, ex.SourceStage, ex.Recoverable, ex.Timestamp, r.now(),
	)
	return storeErrors.Map(err)
}

func (r *repo) Exceptions(ctx context.Context, sessionID string) ([]Exception, error) {
	if _, err := r.Read(ctx, sessionID); err != nil {
		return nil, err
	}

	q := `SELECT ` + exceptionColumns + `
		FROM workflow_exceptions
		WHERE session_id = $1
		ORDER BY occurred_at ASC, seq ASC`

	exs, err := repository.QueryMany(ctx, r.db, q, []any{sessionID}, scanException)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	return exs, nil
}

// Sweep deletes expired sessions, cascading to their exceptions, and prunes
// expired idempotency keys in the same transaction.
func (r *repo) Sweep(ctx context.Context, now time.Time) (int, error) {
	n, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (int64, error) {
		n, err := repository.ExecAffected(ctx, tx, `DELETE FROM workflow_sessions WHERE expires_at <= $1`, now)
		if err != nil {
			return 0, err
		}
		keys, err := repository.ExecAffected(ctx, tx, `DELETE FROM workflow_idempotency WHERE expires_at <= $1`, now)
		if err != nil {
			return 0, err
		}
		if keys > 0 {
			r.logger.Debug("idempotency keys pruned", "count", keys)
		}
		return n, nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(n), nil
}
