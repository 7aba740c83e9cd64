package sessions

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Idempotency maps a submission key to the session created for it.
type Idempotency interface {
	// Lookup returns the session id remembered for key, if any and unexpired.
	Lookup(ctx context.Context, key string) (string, bool, error)
	// Remember associates key with sessionID until expiresAt.
	Remember(ctx context.Context, key, sessionID string, expiresAt time.Time) error
}

type idempotencyRepo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewIdempotency creates a PostgreSQL-backed idempotency cache.
func NewIdempotency(db *sql.DB, logger *slog.Logger, now func() time.Time) Idempotency {
	if now == nil {
		now = time.Now
	}
	return &idempotencyRepo{
		db:     db,
		logger: logger.With("system", "idempotency"),
		now:    now,
	}
}

func (r *idempotencyRepo) Lookup(ctx context.Context, key string) (string, bool, error) {
	var sessionID string
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id
		FROM workflow_idempotency
		WHERE key = $1 AND expires_at > $2`,
		key, r.now(),
	).Scan(&sessionID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sessionID, true, nil
}

func (r *idempotencyRepo) Remember(ctx context.Context, key, sessionID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_idempotency (key, session_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET session_id = EXCLUDED.session_id, expires_at = EXCLUDED.expires_at`,
		key, sessionID, expiresAt,
	)
	return err
}

type idempotencyEntry struct {
	sessionID string
	expiresAt time.Time
}

type memoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	now     func() time.Time
}

// NewMemoryIdempotency creates an in-process idempotency cache.
func NewMemoryIdempotency(now func() time.Time) Idempotency {
	if now == nil {
		now = time.Now
	}
	return &memoryIdempotency{
		entries: make(map[string]idempotencyEntry),
		now:     now,
	}
}

func (m *memoryIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.sessionID, true, nil
}

func (m *memoryIdempotency) Remember(ctx context.Context, key, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = idempotencyEntry{sessionID: sessionID, expiresAt: expiresAt}
	return nil
}
