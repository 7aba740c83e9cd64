// Package module mounts prefix-scoped HTTP handlers, each with its own
// middleware stack, under a single root router.
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/JaimeStill/matchflow/pkg/middleware"
)

// Module serves every request under a single-level prefix such as "/api".
// The prefix is removed before the inner handler sees the request, so the
// handler registers patterns like "GET /workflow/{sessionId}/status".
type Module struct {
	prefix     string
	inner      http.Handler
	middleware middleware.System

	once    sync.Once
	handler http.Handler
}

// New creates a Module for prefix. It panics on an empty, relative, or
// multi-level prefix.
func New(prefix string, inner http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:     prefix,
		inner:      inner,
		middleware: middleware.New(),
	}
}

// Prefix returns the mount prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends middleware. The chain is built on the first request; later
// calls to Use panic.
func (m *Module) Use(mw ...func(http.Handler) http.Handler) {
	if m.handler != nil {
		panic(fmt.Sprintf("module %s: Use after first request", m.prefix))
	}
	m.middleware.Use(mw...)
}

// Handler returns the inner handler wrapped in the middleware chain.
func (m *Module) Handler() http.Handler {
	m.once.Do(func() {
		m.handler = m.middleware.Apply(m.inner)
	})
	return m.handler
}

// Serve dispatches a copy of req with the prefix removed from both the
// decoded and escaped paths. req itself is not modified.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, stripPrefix(req, m.prefix))
}

func stripPrefix(req *http.Request, prefix string) *http.Request {
	u := new(url.URL)
	*u = *req.URL
	u.Path = trimmed(req.URL.Path, prefix)
	if req.URL.RawPath != "" {
		u.RawPath = trimmed(req.URL.RawPath, prefix)
	}

	out := new(http.Request)
	*out = *req
	out.URL = u
	return out
}

func trimmed(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case prefix[0] != '/':
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case len(prefix) == 1 || strings.Contains(prefix[1:], "/"):
		return fmt.Errorf("module prefix must be a single path segment: %s", prefix)
	}
	return nil
}
