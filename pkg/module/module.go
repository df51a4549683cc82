// Package module mounts prefix-scoped HTTP modules on a single router.
package module

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/headcount/pkg/middleware"
)

// Module serves an inner router below a single-level path prefix. Requests
// reach the router with the prefix stripped, wrapped in the module middleware.
type Module struct {
	prefix  string
	handler http.Handler
}

// New creates a Module with the given prefix (e.g. "/api"). mw wraps router
// with the first entry outermost. Panics if the prefix is empty, missing a
// leading slash, or multi-level.
func New(prefix string, router http.Handler, mw ...middleware.Func) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{
		prefix:  prefix,
		handler: middleware.Chain(mw...)(router),
	}
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Serve strips the module prefix from the request path and dispatches to the
// wrapped router.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.handler.ServeHTTP(w, stripPrefix(req, m.prefix))
}

// ServeHTTP lets a Module stand alone as an http.Handler.
func (m *Module) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	m.Serve(w, req)
}

func stripPrefix(req *http.Request, prefix string) *http.Request {
	path := strings.TrimPrefix(req.URL.Path, prefix)
	if path == "" {
		path = "/"
	}

	r := req.Clone(req.Context())
	r.URL.Path = path
	r.URL.RawPath = ""
	return r
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("module prefix cannot be empty")
	}
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	}
	if strings.Count(prefix, "/") != 1 {
		return fmt.Errorf("module prefix must be single-level sub-path: %s", prefix)
	}
	return nil
}
