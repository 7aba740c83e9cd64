package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JaimeStill/matchflow/pkg/pagination"
)

type memory struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	exceptions map[string][]Exception
	logger     *slog.Logger
	now        func() time.Time
}

// NewMemory creates an in-process store for local runs and tests.
func NewMemory(logger *slog.Logger, now func() time.Time) System {
	if now == nil {
		now = time.Now
	}
	return &memory{
		sessions:   make(map[string]*Session),
		exceptions: make(map[string][]Exception),
		logger:     logger.With("system", "sessions", "provider", "memory"),
		now:        now,
	}
}

func (m *memory) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.SessionID]; ok {
		return ErrDuplicate
	}
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

func (m *memory) Read(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.live(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *memory) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Session], error) {
	m.mu.RLock()
	now := m.now()
	var matched []Session
	for _, s := range m.sessions {
		if !s.Expired(now) && filters.Match(s) && matchesSearch(s, page.Search) {
			matched = append(matched, *s.Clone())
		}
	}
	m.mu.RUnlock()

	sortSessions(matched, page.Sort)
	start, end := page.Window(len(matched))
	result := pagination.NewPageResult(matched[start:end], len(matched), page.Page, page.PageSize)
	return &result, nil
}

func (m *memory) UpdateStage(ctx context.Context, sessionID string, stage Stage, status StageStatus) error {
	if !stage.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStage, stage)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return err
	}

	current := s.Stages[stage].Status
	if !CanTransition(current, status.Status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, stage, current, status.Status)
	}

	status.SubSteps = TrimDepth(status.SubSteps, MaxSubStepDepth)
	s.Stages[stage] = status
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) SetStatus(ctx context.Context, sessionID string, status OverallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return err
	}
	if s.OverallStatus.Terminal() || status.Terminal() {
		return fmt.Errorf("%w: overall %s -> %s", ErrInvalidTransition, s.OverallStatus, status)
	}

	s.OverallStatus = status
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) SetClassification(ctx context.Context, sessionID, classification string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return err
	}

	s.Classification = &classification
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) AddTokenUsage(ctx context.Context, sessionID string, usage TokenUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return err
	}

	var total TokenUsage
	if s.TokenUsage != nil {
		total = *s.TokenUsage
	}
	total = total.Add(usage)
	s.TokenUsage = &total
	s.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memory) Finalize(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.live(sessionID)
	if err != nil {
		return nil, err
	}

	if !s.OverallStatus.Terminal() || s.CompletedAt == nil {
		s.finalize(m.now())
	}
	return s.Clone(), nil
}

func (m *memory) AppendException(ctx context.Context, ex Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.live(ex.SessionID); err != nil {
		return err
	}
	m.exceptions[ex.SessionID] = append(m.exceptions[ex.SessionID], ex)
	return nil
}

func (m *memory) Exceptions(ctx context.Context, sessionID string) ([]Exception, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := m.live(sessionID); err != nil {
		return nil, err
	}

	out := make([]Exception, len(m.exceptions[sessionID]))
	copy(out, m.exceptions[sessionID])
	SortExceptions(out)
	return out, nil
}

func (m *memory) Sweep(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			delete(m.exceptions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memory) live(sessionID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok || s.Expired(m.now()) {
		return nil, ErrNotFound
	}
	return s, nil
}
