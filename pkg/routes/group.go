package routes

import "net/http"

// Group organizes routes under a common prefix with shared middleware.
// Children inherit the parent's prefix and middleware.
type Group struct {
	Prefix     string
	Middleware []Middleware
	Routes     []Route
	Children   []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", nil, group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, parentMw []Middleware, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	chain := append(append([]Middleware{}, parentMw...), group.Middleware...)

	for _, route := range group.Routes {
		pattern := route.Method + " " + fullPrefix + route.Pattern
		mux.Handle(pattern, wrap(route.Handler, append(append([]Middleware{}, chain...), route.Middleware...)))
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, chain, child)
	}
}

// wrap applies middleware so the first entry runs outermost.
func wrap(h http.Handler, mw []Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
