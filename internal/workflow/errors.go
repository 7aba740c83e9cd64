package workflow

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/matchflow/internal/sessions"
)

// Sentinel errors for workflow operations.
var (
	ErrInvalidSubmission = errors.New("invalid workflow submission")
	ErrInvalidState      = errors.New("session is not in a state that allows this operation")
	ErrStoreWrite        = errors.New("status store write failed")
	ErrStageFailed       = errors.New("stage failed")
	ErrUnavailable       = errors.New("workflow service is shutting down")
)

// MapHTTPStatus maps workflow and session errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrInvalidSubmission) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrInvalidState) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, sessions.ErrNotFound) ||
		errors.Is(err, sessions.ErrDuplicate) ||
		errors.Is(err, sessions.ErrInvalidTransition) {
		return sessions.MapHTTPStatus(err)
	}
	return http.StatusInternalServerError
}
