// Package middleware provides the HTTP middleware shared by the API module
// and the native routes: request logging, panic recovery and CORS.
package middleware

import "net/http"

// Func wraps a handler with cross-cutting behavior.
type Func = func(http.Handler) http.Handler

// Chain composes mw into a single Func. The first entry runs outermost, so
// Chain(Recover, Logger) recovers panics raised while logging.
func Chain(mw ...Func) Func {
	return func(h http.Handler) http.Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		return h
	}
}
