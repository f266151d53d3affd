package routes

import (
	"net/http"

	"github.com/JaimeStill/loam/pkg/middleware"
)

// Group organizes routes under a common prefix. Middleware wraps every
// route in the group and its children, outermost first.
type Group struct {
	Prefix     string
	Middleware []middleware.Func
	Routes     []Route
	Children   []Group
}

// With returns a copy of g with mw appended to its middleware.
func (g Group) With(mw ...middleware.Func) Group {
	g.Middleware = append(g.Middleware[:len(g.Middleware):len(g.Middleware)], mw...)
	return g
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", nil, group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, inherited []middleware.Func, group Group) {
	prefix := parentPrefix + group.Prefix
	stack := append(inherited[:len(inherited):len(inherited)], group.Middleware...)

	wrap := middleware.Chain(stack...)

	for _, route := range group.Routes {
		mux.Handle(route.Method+" "+prefix+route.Pattern, wrap(route.Handler))
	}
	for _, child := range group.Children {
		registerGroup(mux, prefix, stack, child)
	}
}
