package sessions

import (
	"github.com/JaimeStill/matchflow/pkg/repository"
)

const sessionColumns = `session_id, correlation_id, document_id, source_type, overall_status,
	stages, classification, token_usage, created_at, updated_at, completed_at, expires_at`

const exceptionColumns = `id, session_id, severity, message, source_stage, recoverable, occurred_at`

func scanSession(s repository.Scanner) (Session, error) {
	var (
		sess       Session
		stages     repository.JSON[Stages]
		tokenUsage repository.JSON[TokenUsage]
	)

	err := s.Scan(
		&sess.SessionID,
		&sess.CorrelationID,
		&sess.DocumentID,
		&sess.SourceType,
		&sess.OverallStatus,
		&stages,
		&sess.Classification,
		&tokenUsage,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&sess.CompletedAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		return sess, err
	}

	sess.Stages = stages.V
	if tokenUsage.Valid {
		usage := tokenUsage.V
		sess.TokenUsage = &usage
	}
	return sess, nil
}

func scanException(s repository.Scanner) (Exception, error) {
	var ex Exception
	err := s.Scan(
		&ex.ID,
		&ex.SessionID,
		&ex.Severity,
		&ex.Message,
		&ex.SourceStage,
		&ex.Recoverable,
		&ex.Timestamp,
	)
	return ex, err
}
