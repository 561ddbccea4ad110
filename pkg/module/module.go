// Package module mounts self-contained HTTP handlers under single-segment
// path prefixes. Each Module owns a middleware chain; a Router dispatches
// on the first path segment and falls back to a native mux.
package module

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/JaimeStill/mrv/pkg/middleware"
)

// Module serves an inner handler beneath a prefix such as "/api". The inner
// handler sees paths with the prefix removed.
type Module struct {
	prefix string
	inner  http.Handler
	chain  middleware.Chain

	once    sync.Once
	handler http.Handler
}

// New creates a Module. It panics if prefix is not a single "/segment".
func New(prefix string, inner http.Handler) *Module {
	if err := checkPrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{prefix: prefix, inner: inner}
}

// Prefix returns the mount prefix.
func (m *Module) Prefix() string { return m.prefix }

// Use appends middleware. Calls after the first request have no effect.
func (m *Module) Use(mw ...middleware.Func) {
	for _, fn := range mw {
		m.chain.Use(fn)
	}
}

// Handler returns the inner handler wrapped in the middleware chain,
// without prefix stripping.
func (m *Module) Handler() http.Handler {
	m.once.Do(func() {
		m.handler = m.chain.Then(m.inner)
	})
	return m.handler
}

// ServeHTTP strips the prefix and dispatches to Handler.
func (m *Module) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, stripped(r, m.prefix))
}

func stripped(r *http.Request, prefix string) *http.Request {
	u := *r.URL
	u.Path = strings.TrimPrefix(r.URL.Path, prefix)
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawPath = ""

	out := new(http.Request)
	*out = *r
	out.URL = &u
	return out
}

func checkPrefix(prefix string) error {
	segment, ok := strings.CutPrefix(prefix, "/")
	switch {
	case !ok:
		return fmt.Errorf("module prefix %q must start with /", prefix)
	case segment == "":
		return fmt.Errorf("module prefix cannot be empty")
	case strings.Contains(segment, "/"):
		return fmt.Errorf("module prefix %q must be a single segment", prefix)
	}
	return nil
}
