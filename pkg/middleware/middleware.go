// Package middleware provides the HTTP middleware shared by every module:
// request logging, panic recovery, and CORS.
package middleware

import "net/http"

// Func wraps a handler.
type Func = func(http.Handler) http.Handler

// Chain composes fns so the first runs outermost.
func Chain(fns ...Func) Func {
	return func(h http.Handler) http.Handler {
		for i := len(fns) - 1; i >= 0; i-- {
			h = fns[i](h)
		}
		return h
	}
}

// System accumulates an ordered middleware stack.
type System interface {
	Use(fns ...Func)
	Apply(handler http.Handler) http.Handler
}

type stack []Func

// New creates an empty System.
func New() System {
	return &stack{}
}

func (s *stack) Use(fns ...Func) {
	*s = append(*s, fns...)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	return Chain(*s...)(handler)
}
