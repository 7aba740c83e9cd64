package agent

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrSigning marks failures to produce a signed request. Signing failures are never retried.
var ErrSigning = errors.New("request signing failed")

// Kind classifies an invocation failure.
type Kind string

const (
	KindSigning   Kind = "signing"
	KindTimeout   Kind = "timeout"
	KindHTTP      Kind = "http"
	KindNetwork   Kind = "network"
	KindMalformed Kind = "malformed"
)

// Error is returned by Client.Invoke when no attempt produced a result.
type Error struct {
	Kind       Kind
	Endpoint   string
	Attempts   int
	Elapsed    time.Duration
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("agent %s error after %d attempt(s)", e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTP:
		return e.StatusCode >= http.StatusInternalServerError ||
			e.StatusCode == http.StatusRequestTimeout
	default:
		return false
	}
}
