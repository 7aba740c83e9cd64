package sessions_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/pagination"
	"github.com/JaimeStill/matchflow/pkg/query"
)

// Runs against a migrated database named by MATCHFLOW_TEST_DSN.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MATCHFLOW_TEST_DSN")
	if dsn == "" {
		t.Skip("MATCHFLOW_TEST_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())
	return db
}

func TestPostgresLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := sessions.New(db, discard(), nil)

	s := sessions.NewSession(sessions.CreateCommand{
		SessionID:     uuid.NewString(),
		CorrelationID: uuid.NewString(),
		DocumentID:    "DOC-1",
		SourceType:    sessions.SourceBank,
		CreatedAt:     time.Now(),
	})
	require.NoError(t, store.Create(ctx, s))
	assert.ErrorIs(t, store.Create(ctx, s), sessions.ErrDuplicate)

	require.NoError(t, store.SetStatus(ctx, s.SessionID, sessions.StatusProcessing))
	for _, stage := range sessions.Pipeline() {
		require.NoError(t, store.UpdateStage(ctx, s.SessionID, stage, sessions.StageStatus{Status: sessions.StateInProgress}))
		require.NoError(t, store.UpdateStage(ctx, s.SessionID, stage, sessions.StageStatus{Status: sessions.StateSuccess}))
	}

	err := store.UpdateStage(ctx, s.SessionID, sessions.StageAdapt, sessions.StageStatus{Status: sessions.StateInProgress})
	assert.ErrorIs(t, err, sessions.ErrInvalidTransition)

	require.NoError(t, store.AddTokenUsage(ctx, s.SessionID, sessions.TokenUsage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}))
	require.NoError(t, store.SetClassification(ctx, s.SessionID, "AUTO_MATCH"))

	first, err := store.Finalize(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusCompleted, first.OverallStatus)

	second, err := store.Finalize(ctx, s.SessionID)
	require.NoError(t, err)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	require.NoError(t, store.AppendException(ctx, sessions.Exception{
		ID:          uuid.NewString(),
		SessionID:   s.SessionID,
		Severity:    sessions.SeverityInfo,
		Message:     "late",
		SourceStage: sessions.StageMatch,
		Timestamp:   time.Now().Add(time.Second),
	}))
	require.NoError(t, store.AppendException(ctx, sessions.Exception{
		ID:          uuid.NewString(),
		SessionID:   s.SessionID,
		Severity:    sessions.SeverityInfo,
		Message:     "early",
		SourceStage: sessions.StageMatch,
		Timestamp:   time.Now(),
	}))

	exs, err := store.Exceptions(ctx, s.SessionID)
	require.NoError(t, err)
	require.Len(t, exs, 2)
	assert.Equal(t, "early", exs[0].Message)

	got, err := store.Read(ctx, s.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got.Classification)
	assert.Equal(t, "AUTO_MATCH", *got.Classification)
	assert.Equal(t, int64(7), got.TokenUsage.TotalTokens)

	n, err := store.Sweep(ctx, s.ExpiresAt)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestPostgresList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := sessions.New(db, discard(), nil)

	doc := "LIST-" + uuid.NewString()
	base := time.Now()
	var created []string
	for i := range 3 {
		s := sessions.NewSession(sessions.CreateCommand{
			SessionID:     uuid.NewString(),
			CorrelationID: uuid.NewString(),
			DocumentID:    doc,
			SourceType:    sessions.SourceCounterparty,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, store.Create(ctx, s))
		created = append(created, s.SessionID)
	}

	res, err := store.List(ctx, pagination.PageRequest{
		Page:     1,
		PageSize: 2,
		Sort:     query.ParseSortFields("createdAt,bogus"),
	}, sessions.Filters{DocumentID: &doc})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Data, 2)
	assert.Equal(t, created[0], res.Data[0].SessionID)
	assert.Equal(t, created[1], res.Data[1].SessionID)

	search := doc[5:13]
	res, err = store.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10, Search: &search}, sessions.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, created[2], res.Data[0].SessionID)
}
