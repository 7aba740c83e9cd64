package sessions

import (
	"sort"
	"time"
)

// Severity grades an exception.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Exception is an append-only business exception raised during a session.
type Exception struct {
	ID          string    `json:"id" firestore:"id"`
	SessionID   string    `json:"sessionId" firestore:"sessionId"`
	Severity    Severity  `json:"severity" firestore:"severity"`
	Message     string    `json:"message" firestore:"message"`
	SourceStage Stage     `json:"sourceStage" firestore:"sourceStage"`
	Recoverable bool      `json:"recoverable" firestore:"recoverable"`
	Timestamp   time.Time `json:"timestamp" firestore:"timestamp"`
}

// SortExceptions orders exceptions by ascending timestamp, keeping insertion
// order among equal timestamps.
func SortExceptions(exs []Exception) {
	sort.SliceStable(exs, func(i, j int) bool {
		return exs[i].Timestamp.Before(exs[j].Timestamp)
	})
}
