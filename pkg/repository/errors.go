package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the helpers react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Errors names the domain errors a store translates database failures into.
type Errors struct {
	NotFound  error
	Duplicate error
}

// Map translates err: sql.ErrNoRows and foreign key violations (a child row
// written for a parent that no longer exists) become NotFound, unique
// violations become Duplicate. Anything else is returned unchanged.
func (e Errors) Map(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return e.NotFound
	}

	switch pgCode(err) {
	case codeForeignKeyViolation:
		return e.NotFound
	case codeUniqueViolation:
		return e.Duplicate
	}
	return err
}

// Retryable reports whether err is a serialization failure or deadlock,
// after which the whole transaction may be retried.
func Retryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
