// Package middleware provides the HTTP middleware shared by API modules:
// correlation id propagation, CORS, and request logging.
package middleware

import (
	"net/http"
	"slices"
)

// System manages an ordered stack of HTTP middleware.
type System interface {
	Use(mw ...func(http.Handler) http.Handler)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	mws []func(http.Handler) http.Handler
}

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

// Use appends mw in order; the first registered runs outermost.
func (s *stack) Use(mw ...func(http.Handler) http.Handler) {
	s.mws = append(s.mws, mw...)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(s.mws) {
		handler = mw(handler)
	}
	return handler
}
