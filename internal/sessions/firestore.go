package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JaimeStill/matchflow/pkg/pagination"
)

const exceptionsCollection = "exceptions"

type firestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
	now        func() time.Time
}

// NewFirestore creates a Firestore-backed session store. Each session is one
// document keyed by session id with exceptions in a subcollection. A TTL
// policy on expiresAt lets Firestore expire documents without the sweeper.
func NewFirestore(client *firestore.Client, collection string, logger *slog.Logger, now func() time.Time) System {
	if now == nil {
		now = time.Now
	}
	return &firestoreStore{
		client:     client,
		collection: collection,
		logger:     logger.With("system", "sessions", "provider", "firestore"),
		now:        now,
	}
}

func (f *firestoreStore) doc(sessionID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(sessionID)
}

func (f *firestoreStore) Create(ctx context.Context, s *Session) error {
	if _, err := f.doc(s.SessionID).Create(ctx, s); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicate
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (f *firestoreStore) Read(ctx context.Context, sessionID string) (*Session, error) {
	snap, err := f.doc(sessionID).Get(ctx)
	if err != nil {
		return nil, mapFirestoreError(err)
	}
	return f.decode(snap)
}

// List pushes equality filters to Firestore and applies expiry, search,
// sort, and paging in process, since Firestore offers no substring match.
func (f *firestoreStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Session], error) {
	q := f.client.Collection(f.collection).Query
	for _, w := range []struct {
		path  string
		value *string
	}{
		{"overallStatus", (*string)(filters.Status)},
		{"sourceType", (*string)(filters.SourceType)},
		{"documentId", filters.DocumentID},
		{"correlationId", filters.CorrelationID},
	} {
		if w.value != nil {
			q = q.Where(w.path, "==", *w.value)
		}
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var matched []Session
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query sessions: %w", err)
		}

		s, err := f.decode(snap)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matchesSearch(s, page.Search) {
			matched = append(matched, *s)
		}
	}

	sortSessions(matched, page.Sort)
	start, end := page.Window(len(matched))
	result := pagination.NewPageResult(matched[start:end], len(matched), page.Page, page.PageSize)
	return &result, nil
}

func (f *firestoreStore) UpdateStage(ctx context.Context, sessionID string, stage Stage, next StageStatus) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStage, stage)
	}
	next.SubSteps = TrimDepth(next.SubSteps, MaxSubStepDepth)

	ref := f.doc(sessionID)
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapFirestoreError(err)
		}
		s, err := f.decode(snap)
		if err != nil {
			return err
		}

		current := s.Stages[stage].Status
		if !CanTransition(current, next.Status) {
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, stage, current, next.Status)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "stages." + string(stage), Value: next},
			{Path: "updatedAt", Value: f.now().UTC()},
		})
	})
}

func (f *firestoreStore) SetStatus(ctx context.Context, sessionID string, next OverallStatus) error {
	ref := f.doc(sessionID)
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapFirestoreError(err)
		}
		s, err := f.decode(snap)
		if err != nil {
			return err
		}
		if s.OverallStatus.Terminal() || next.Terminal() {
			return fmt.Errorf("%w: overall %s -> %s", ErrInvalidTransition, s.OverallStatus, next)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "overallStatus", Value: next},
			{Path: "updatedAt", Value: f.now().UTC()},
		})
	})
}

func (f *firestoreStore) SetClassification(ctx context.Context, sessionID, classification string) error {
	return f.update(ctx, sessionID, []firestore.Update{
		{Path: "classification", Value: classification},
		{Path: "updatedAt", Value: f.now().UTC()},
	})
}

func (f *firestoreStore) AddTokenUsage(ctx context.Context, sessionID string, usage TokenUsage) error {
	return f.update(ctx, sessionID, []firestore.Update{
		{Path: "tokenUsage.inputTokens", Value: firestore.Increment(usage.InputTokens)},
		{Path: "tokenUsage.outputTokens", Value: firestore.Increment(usage.OutputTokens)},
		{Path: "tokenUsage.totalTokens", Value: firestore.Increment(usage.TotalTokens)},
		{Path: "updatedAt", Value: f.now().UTC()},
	})
}

func (f *firestoreStore) Finalize(ctx context.Context, sessionID string) (*Session, error) {
	ref := f.doc(sessionID)

	var out *Session
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapFirestoreError(err)
		}
		s, err := f.decode(snap)
		if err != nil {
			return err
		}

		out = s
		if s.OverallStatus.Terminal() && s.CompletedAt != nil {
			return nil
		}

		s.finalize(f.now())
		return tx.Update(ref, []firestore.Update{
			{Path: "overallStatus", Value: s.OverallStatus},
			{Path: "completedAt", Value: *s.CompletedAt},
			{Path: "updatedAt", Value: s.UpdatedAt},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *firestoreStore) AppendException(ctx context.Context, ex Exception) error {
	if _, err := f.Read(ctx, ex.SessionID); err != nil {
		return err
	}

	ref := f.doc(ex.SessionID).Collection(exceptionsCollection).Doc(ex.ID)
	if _, err := ref.Create(ctx, ex); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrDuplicate
		}
		return fmt.Errorf("append exception: %w", err)
	}
	return nil
}

func (f *firestoreStore) Exceptions(ctx context.Context, sessionID string) ([]Exception, error) {
	if _, err := f.Read(ctx, sessionID); err != nil {
		return nil, err
	}

	iter := f.doc(sessionID).
		Collection(exceptionsCollection).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	exs := make([]Exception, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query exceptions: %w", err)
		}

		var ex Exception
		if err := snap.DataTo(&ex); err != nil {
			return nil, fmt.Errorf("decode exception: %w", err)
		}
		exs = append(exs, ex)
	}

	SortExceptions(exs)
	return exs, nil
}

func (f *firestoreStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	iter := f.client.Collection(f.collection).
		Where("expiresAt", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("query expired sessions: %w", err)
		}

		if err := f.deleteSession(ctx, snap.Ref); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (f *firestoreStore) deleteSession(ctx context.Context, ref *firestore.DocumentRef) error {
	refs, err := ref.Collection(exceptionsCollection).DocumentRefs(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("list exceptions %s: %w", ref.ID, err)
	}
	for _, ex := range refs {
		if _, err := ex.Delete(ctx); err != nil {
			return fmt.Errorf("delete exception %s: %w", ex.ID, err)
		}
	}

	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete session %s: %w", ref.ID, err)
	}
	return nil
}

func (f *firestoreStore) update(ctx context.Context, sessionID string, updates []firestore.Update) error {
	if _, err := f.Read(ctx, sessionID); err != nil {
		return err
	}
	if _, err := f.doc(sessionID).Update(ctx, updates); err != nil {
		return mapFirestoreError(err)
	}
	return nil
}

func (f *firestoreStore) decode(snap *firestore.DocumentSnapshot) (*Session, error) {
	var s Session
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Expired(f.now()) {
		return nil, ErrNotFound
	}
	return &s, nil
}

func mapFirestoreError(err error) error {
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

type firestoreIdempotency struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

type idempotencyDoc struct {
	SessionID string    `firestore:"sessionId"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// NewFirestoreIdempotency creates an idempotency cache stored in collection.
// Keys must be valid Firestore document ids.
func NewFirestoreIdempotency(client *firestore.Client, collection string, now func() time.Time) Idempotency {
	if now == nil {
		now = time.Now
	}
	return &firestoreIdempotency{client: client, collection: collection, now: now}
}

func (f *firestoreIdempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	snap, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, err
	}

	var doc idempotencyDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, err
	}
	if !f.now().Before(doc.ExpiresAt) {
		return "", false, nil
	}
	return doc.SessionID, true, nil
}

func (f *firestoreIdempotency) Remember(ctx context.Context, key, sessionID string, expiresAt time.Time) error {
	_, err := f.client.Collection(f.collection).Doc(key).Set(ctx, idempotencyDoc{
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	})
	return err
}
