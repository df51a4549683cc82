package routes

import "net/http"

// Middleware wraps a handler with cross-cutting behavior such as authentication.
type Middleware func(http.Handler) http.Handler

// Route binds an HTTP method and pattern to a handler.
// Middleware wraps only this route, inside any group middleware.
type Route struct {
	Method     string
	Pattern    string
	Handler    http.HandlerFunc
	Middleware []Middleware
}
