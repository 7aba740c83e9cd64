package routes

import (
	"net/http"

	"github.com/JaimeStill/matchflow/pkg/openapi"
)

// Group organizes routes under a common prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		walk("", group, func(pattern string, h http.HandlerFunc) {
			mux.HandleFunc(pattern, h)
		})
	}
}

// Patterns returns the ServeMux pattern of every route in groups, in
// registration order.
func Patterns(groups ...Group) []string {
	var out []string
	for _, group := range groups {
		walk("", group, func(pattern string, _ http.HandlerFunc) {
			out = append(out, pattern)
		})
	}
	return out
}

// Describe adds every documented route in groups to spec. Paths are relative
// to the mount point, matching the document's server URL.
func Describe(spec *openapi.Spec, groups ...Group) {
	for _, group := range groups {
		visit("", group, func(path string, route Route) {
			if route.OpenAPI != nil {
				spec.AddOperation(path, route.Method, route.OpenAPI)
			}
		})
	}
}

func walk(parentPrefix string, group Group, fn func(pattern string, h http.HandlerFunc)) {
	visit(parentPrefix, group, func(path string, route Route) {
		fn(route.Method+" "+path, route.Handler)
	})
}

func visit(parentPrefix string, group Group, fn func(path string, route Route)) {
	fullPrefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		fn(fullPrefix+route.Pattern, route)
	}
	for _, child := range group.Children {
		visit(fullPrefix, child, fn)
	}
}
