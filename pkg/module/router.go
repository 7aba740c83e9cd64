package module

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/JaimeStill/matchflow/pkg/handlers"
)

// Router sends each request to the module owning its first path segment.
// Paths no module owns go to a native ServeMux; anything else is a JSON 404.
type Router struct {
	modules map[string]*Module
	native  *http.ServeMux
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers handler on the fallback mux.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.native.HandleFunc(pattern, handler)
}

// Mount registers m under its prefix. It panics if the prefix is taken.
func (r *Router) Mount(m *Module) {
	if _, exists := r.modules[m.prefix]; exists {
		panic(fmt.Sprintf("module prefix already mounted: %s", m.prefix))
	}
	r.modules[m.prefix] = m
}

// Prefixes returns the mounted prefixes in sorted order.
func (r *Router) Prefixes() []string {
	return slices.Sorted(maps.Keys(r.modules))
}

// ServeHTTP trims a single trailing slash, then dispatches.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	req = trimTrailingSlash(req)

	if m, ok := r.modules[firstSegment(req.URL.Path)]; ok {
		m.Serve(w, req)
		return
	}

	if _, pattern := r.native.Handler(req); pattern == "" {
		handlers.RespondJSON(w, http.StatusNotFound, map[string]string{
			"error": "no route for " + req.URL.Path,
		})
		return
	}
	r.native.ServeHTTP(w, req)
}

func firstSegment(path string) string {
	if path == "" {
		return path
	}
	if i := strings.IndexByte(path[1:], '/'); i >= 0 {
		return path[:i+1]
	}
	return path
}

func trimTrailingSlash(req *http.Request) *http.Request {
	path := req.URL.Path
	if len(path) <= 1 || !strings.HasSuffix(path, "/") {
		return req
	}

	u := new(url.URL)
	*u = *req.URL
	u.Path = strings.TrimSuffix(path, "/")
	if u.RawPath != "" {
		u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	}

	out := new(http.Request)
	*out = *req
	out.URL = u
	return out
}
