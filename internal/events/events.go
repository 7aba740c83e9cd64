// Package events fans workflow progress out to live observers. Delivery is
// at-most-once per subscriber with no replay; observers that miss events
// resynchronize from the status endpoint.
package events

import (
	"time"

	"github.com/JaimeStill/matchflow/internal/sessions"
)

// Type tags an event envelope.
type Type string

const (
	TypeAgentStatusUpdate Type = "AGENT_STATUS_UPDATE"
	TypeStepUpdate        Type = "STEP_UPDATE"
	TypeResultAvailable   Type = "RESULT_AVAILABLE"
	TypeException         Type = "EXCEPTION"
)

// Payload is one of the fixed event variants.
type Payload interface {
	EventType() Type
}

// AgentStatusUpdate is a full status snapshot of a session.
type AgentStatusUpdate struct {
	OverallStatus sessions.OverallStatus `json:"overallStatus"`
	Stages        sessions.Stages        `json:"stages"`
}

func (AgentStatusUpdate) EventType() Type { return TypeAgentStatusUpdate }

// StepUpdate reports a change to a single stage.
type StepUpdate struct {
	Stage  sessions.Stage       `json:"stage"`
	Status sessions.StageStatus `json:"status"`
}

func (StepUpdate) EventType() Type { return TypeStepUpdate }

// ResultAvailable signals that a session reached a terminal status.
type ResultAvailable struct {
	OverallStatus  sessions.OverallStatus `json:"overallStatus"`
	Classification *string                `json:"classification,omitempty"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
}

func (ResultAvailable) EventType() Type { return TypeResultAvailable }

// ExceptionRaised carries a newly recorded business exception.
type ExceptionRaised struct {
	Exception sessions.Exception `json:"exception"`
}

func (ExceptionRaised) EventType() Type { return TypeException }

// Envelope is the wire form of every event.
type Envelope struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
}

// NewEnvelope wraps p for sessionID.
func NewEnvelope(sessionID string, p Payload, at time.Time) Envelope {
	return Envelope{
		Type:      p.EventType(),
		SessionID: sessionID,
		Timestamp: at.UTC(),
		Data:      p,
	}
}

// Snapshot builds an AgentStatusUpdate from a session.
func Snapshot(s *sessions.Session) AgentStatusUpdate {
	return AgentStatusUpdate{
		OverallStatus: s.OverallStatus,
		Stages:        s.Stages,
	}
}

// Result builds a ResultAvailable from a finalized session.
func Result(s *sessions.Session) ResultAvailable {
	return ResultAvailable{
		OverallStatus:  s.OverallStatus,
		Classification: s.Classification,
		CompletedAt:    s.CompletedAt,
	}
}
