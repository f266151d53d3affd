// Package module mounts self-contained HTTP handlers under single-level path
// prefixes. Each module carries its own middleware stack and sees request
// paths relative to its prefix.
package module

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/JaimeStill/loam/pkg/middleware"
)

// Module strips its prefix and delegates to an inner handler wrapped with
// the module's middleware.
type Module struct {
	prefix     string
	inner      http.Handler
	middleware middleware.System

	once    sync.Once
	handler http.Handler
}

// New creates a Module for a single-level prefix such as "/api".
// Panics when the prefix is empty, lacks a leading slash, or is nested.
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

// Prefix returns the module's mount prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends middleware to the module's stack, outermost first. The stack
// is frozen on the first request; calling Use afterwards panics.
func (m *Module) Use(mw ...middleware.Func) {
	if m.handler != nil {
		panic(fmt.Sprintf("module %s: Use called after first request", m.prefix))
	}
	m.middleware.Use(mw...)
}

// Handler returns the inner handler wrapped with the middleware stack.
func (m *Module) Handler() http.Handler {
	m.once.Do(func() {
		m.handler = m.middleware.Apply(m.inner)
	})
	return m.handler
}

// Serve rewrites the request path relative to the prefix and dispatches it.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, withPath(req, relativePath(req.URL.Path, m.prefix)))
}

func withPath(req *http.Request, path string) *http.Request {
	u := *req.URL
	u.Path = path
	u.RawPath = ""

	out := req.WithContext(req.Context())
	out.URL = &u
	return out
}

func relativePath(full, prefix string) string {
	rest := strings.TrimPrefix(full, prefix)
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
	case strings.Count(prefix, "/") != 1 || len(prefix) == 1:
		return fmt.Errorf("module prefix must be a single path segment: %s", prefix)
	}
	return nil
}

