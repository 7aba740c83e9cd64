package sessions

import (
	"errors"
	"net/http"
)

// Domain errors for session storage.
var (
	ErrNotFound          = errors.New("session not found")
	ErrDuplicate         = errors.New("session already exists")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrInvalidStage      = errors.New("unknown stage")
)

// MapHTTPStatus maps session domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrInvalidTransition) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidStage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
