package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/formatting"
)

// ClassificationAutoMatch is the match outcome that needs no exception handling.
const ClassificationAutoMatch = "AUTO_MATCH"

// RequiresEscalation reports whether a match classification routes the
// session through exceptionHandle.
func RequiresEscalation(classification string) bool {
	return !strings.EqualFold(classification, ClassificationAutoMatch)
}

// OutputKey is the archive key holding a stage's raw agent output.
func OutputKey(sessionID string, stage sessions.Stage) string {
	return fmt.Sprintf("sessions/%s/%s.json", sessionID, stage)
}

// Submission starts a workflow for one document.
type Submission struct {
	DocumentID    string              `json:"documentId"`
	SourceType    sessions.SourceType `json:"sourceType"`
	CorrelationID string              `json:"correlationId,omitempty"`
}

// BatchSubmission starts workflows for several documents.
type BatchSubmission struct {
	Documents []Submission `json:"documents"`
}

// BatchResult reports the outcome of one document in a batch.
type BatchResult struct {
	Index      int               `json:"index"`
	DocumentID string            `json:"documentId"`
	Session    *sessions.Session `json:"session,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Invocation acknowledges a manual match trigger.
type Invocation struct {
	InvocationID string `json:"invocationId"`
	SessionID    string `json:"sessionId"`
	Status       string `json:"status"`
}

type outputException struct {
	Severity    sessions.Severity `json:"severity"`
	Message     string            `json:"message"`
	Recoverable bool              `json:"recoverable"`
}

// stageOutput holds the branching fields read from an agent's data payload.
// Everything else in the payload is archived untouched.
type stageOutput struct {
	Classification string               `json:"classification"`
	Confidence     *float64             `json:"confidence"`
	Exceptions     []outputException    `json:"exceptions"`
	TokenUsage     *sessions.TokenUsage `json:"tokenUsage"`
	SubSteps       []sessions.SubStep   `json:"subSteps"`
}

func parseOutput(data json.RawMessage) (stageOutput, error) {
	return formatting.Decode[stageOutput](data)
}

func activity(stage sessions.Stage) string {
	switch stage {
	case sessions.StageAdapt:
		return "Normalizing document"
	case sessions.StageExtract:
		return "Extracting trade fields"
	case sessions.StageMatch:
		return "Matching against counterparty records"
	case sessions.StageExceptionHandle:
		return "Handling match exceptions"
	default:
		return string(stage)
	}
}
