package sessions

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

// DefaultRetention is how long a session remains readable after creation.
const DefaultRetention = 90 * 24 * time.Hour

// MaxSubStepDepth bounds the nesting of sub-step trees.
const MaxSubStepDepth = 4

// SourceType identifies which side of a trade submitted the document.
type SourceType string

const (
	SourceBank         SourceType = "BANK"
	SourceCounterparty SourceType = "COUNTERPARTY"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	return s == SourceBank || s == SourceCounterparty
}

// OverallStatus is the session-level status.
type OverallStatus string

const (
	StatusInitializing OverallStatus = "initializing"
	StatusProcessing   OverallStatus = "processing"
	StatusCompleted    OverallStatus = "completed"
	StatusFailed       OverallStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s OverallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageState is the status of a single stage.
type StageState string

const (
	StatePending    StageState = "pending"
	StateInProgress StageState = "in-progress"
	StateSuccess    StageState = "success"
	StateError      StageState = "error"
	StateWarning    StageState = "warning"
)

func (s StageState) rank() int {
	switch s {
	case StatePending, "":
		return 0
	case StateInProgress:
		return 1
	default:
		return 2
	}
}

// Terminal reports whether s is success, error, or warning.
func (s StageState) Terminal() bool {
	return s.rank() == 2
}

// CanTransition reports whether a stage may move from one state to the next.
// States only move forward; an in-progress stage may be rewritten to update
// its activity, but a terminal state is final.
func CanTransition(from, to StageState) bool {
	if to.rank() > from.rank() {
		return true
	}
	return from == to && from == StateInProgress
}

// Stage names a pipeline step.
type Stage string

const (
	StageAdapt           Stage = "adapt"
	StageExtract         Stage = "extract"
	StageMatch           Stage = "match"
	StageExceptionHandle Stage = "exceptionHandle"
)

// Pipeline returns the stages in execution order.
func Pipeline() []Stage {
	return []Stage{StageAdapt, StageExtract, StageMatch, StageExceptionHandle}
}

// Valid reports whether s is a pipeline stage.
func (s Stage) Valid() bool {
	return slices.Contains(Pipeline(), s)
}

// SubStep is a node in a stage's progress tree.
type SubStep struct {
	Name     string     `json:"name" firestore:"name"`
	Status   StageState `json:"status" firestore:"status"`
	Activity string     `json:"activity,omitempty" firestore:"activity,omitempty"`
	Children []SubStep  `json:"children,omitempty" firestore:"children,omitempty"`
}

// TrimDepth returns steps with every level below depth removed.
func TrimDepth(steps []SubStep, depth int) []SubStep {
	if depth <= 0 || len(steps) == 0 {
		return nil
	}
	out := make([]SubStep, len(steps))
	for i, s := range steps {
		s.Children = TrimDepth(s.Children, depth-1)
		out[i] = s
	}
	return out
}

// ErrorDetail describes why a stage failed.
type ErrorDetail struct {
	Kind       string `json:"kind" firestore:"kind"`
	Message    string `json:"message" firestore:"message"`
	Attempts   int    `json:"attempts,omitempty" firestore:"attempts,omitempty"`
	StatusCode int    `json:"statusCode,omitempty" firestore:"statusCode,omitempty"`
}

// StageStatus is the recorded state of one stage.
type StageStatus struct {
	Status      StageState   `json:"status" firestore:"status"`
	Activity    string       `json:"activity,omitempty" firestore:"activity,omitempty"`
	StartedAt   *time.Time   `json:"startedAt,omitempty" firestore:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty" firestore:"completedAt,omitempty"`
	ElapsedMs   int64        `json:"elapsedMs,omitempty" firestore:"elapsedMs,omitempty"`
	SubSteps    []SubStep    `json:"subSteps,omitempty" firestore:"subSteps,omitempty"`
	ErrorDetail *ErrorDetail `json:"errorDetail,omitempty" firestore:"errorDetail,omitempty"`
	OutputRef   string       `json:"outputRef,omitempty" firestore:"outputRef,omitempty"`
	Skipped     bool         `json:"skipped,omitempty" firestore:"skipped,omitempty"`
}

// Stages maps each pipeline stage to its status.
type Stages map[Stage]StageStatus

// MarshalJSON writes stages in pipeline order.
func (s Stages) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	for _, stage := range Pipeline() {
		status, ok := s[stage]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, _ := json.Marshal(string(stage))
		val, err := json.Marshal(status)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TokenUsage aggregates model token counts reported by agents.
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens" firestore:"inputTokens"`
	OutputTokens int64 `json:"outputTokens" firestore:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens" firestore:"totalTokens"`
}

// Add returns the sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

// Session is the durable record of one workflow execution.
type Session struct {
	SessionID      string        `json:"sessionId" firestore:"sessionId"`
	CorrelationID  string        `json:"correlationId" firestore:"correlationId"`
	DocumentID     string        `json:"documentId" firestore:"documentId"`
	SourceType     SourceType    `json:"sourceType" firestore:"sourceType"`
	OverallStatus  OverallStatus `json:"overallStatus" firestore:"overallStatus"`
	Stages         Stages        `json:"stages" firestore:"stages"`
	Classification *string       `json:"classification,omitempty" firestore:"classification,omitempty"`
	TokenUsage     *TokenUsage   `json:"tokenUsage,omitempty" firestore:"tokenUsage,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt" firestore:"updatedAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty" firestore:"completedAt,omitempty"`
	ExpiresAt      time.Time     `json:"expiresAt" firestore:"expiresAt"`
}

// CreateCommand carries the inputs for a new session.
type CreateCommand struct {
	SessionID     string
	CorrelationID string
	DocumentID    string
	SourceType    SourceType
	CreatedAt     time.Time
	Retention     time.Duration
}

// NewSession builds an initializing session with every stage pending.
func NewSession(cmd CreateCommand) *Session {
	retention := cmd.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	stages := make(Stages, len(Pipeline()))
	for _, stage := range Pipeline() {
		stages[stage] = StageStatus{Status: StatePending}
	}

	created := cmd.CreatedAt.UTC()
	return &Session{
		SessionID:     cmd.SessionID,
		CorrelationID: cmd.CorrelationID,
		DocumentID:    cmd.DocumentID,
		SourceType:    cmd.SourceType,
		OverallStatus: StatusInitializing,
		Stages:        stages,
		CreatedAt:     created,
		UpdatedAt:     created,
		ExpiresAt:     created.Add(retention),
	}
}

// Clone returns a deep copy of s. Sub-step trees are shared; they are
// replaced, never mutated, once written.
func (s *Session) Clone() *Session {
	c := *s
	c.Stages = make(Stages, len(s.Stages))
	for k, v := range s.Stages {
		c.Stages[k] = v
	}
	if s.Classification != nil {
		v := *s.Classification
		c.Classification = &v
	}
	if s.TokenUsage != nil {
		v := *s.TokenUsage
		c.TokenUsage = &v
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// Expired reports whether the session is past its retention at now.
// A session becomes eligible for deletion at exactly ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DeriveStatus computes the overall status implied by the stages:
// failed if any stage errored, completed if every stage succeeded,
// processing otherwise.
func DeriveStatus(stages Stages) OverallStatus {
	completed := true
	for _, stage := range Pipeline() {
		switch stages[stage].Status {
		case StateError:
			return StatusFailed
		case StateSuccess:
		default:
			completed = false
		}
	}
	if completed {
		return StatusCompleted
	}
	return StatusProcessing
}

// finalize applies the terminal status and completion time, preserving an
// existing completion time. Stages left unfinished resolve to failed.
func (s *Session) finalize(at time.Time) {
	at = at.UTC().Truncate(time.Microsecond)
	if !s.OverallStatus.Terminal() {
		status := DeriveStatus(s.Stages)
		if status == StatusProcessing {
			status = StatusFailed
		}
		s.OverallStatus = status
	}
	if s.CompletedAt == nil {
		t := at
		s.CompletedAt = &t
	}
	s.UpdatedAt = at
}
