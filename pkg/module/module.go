// Package module mounts independently middlewared HTTP handlers under
// single-level path prefixes of one server.
package module

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/JaimeStill/tally/pkg/middleware"
)

// ErrPrefixMounted is returned when a second module claims a mounted prefix.
var ErrPrefixMounted = errors.New("module prefix already mounted")

// Module is an HTTP handler that strips its prefix and delegates to an inner router
// with its own middleware stack.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
	handler    http.Handler
}

// New creates a Module with the given single-level prefix (e.g. "/api").
func New(prefix string, router http.Handler) (*Module, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}, nil
}

// Handler returns the inner router wrapped with the module's middleware stack.
// The stack is fixed on first use.
func (m *Module) Handler() http.Handler {
	if m.handler == nil {
		m.handler = m.middleware.Apply(m.router)
	}
	return m.handler
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Serve strips the module prefix from the request path and dispatches to the inner router.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, withPath(req, extractPath(req.URL.Path, m.prefix)))
}

// Use adds middleware to the module's stack. It has no effect after the first request.
func (m *Module) Use(mw func(http.Handler) http.Handler) {
	m.middleware.Use(mw)
}

// Router sends each request to the module mounted on its first path segment.
// Paths no module claims fall through to native handlers such as health probes.
type Router struct {
	mu      sync.RWMutex
	modules map[string]*Module
	native  *http.ServeMux
}

func NewRouter() *Router {
	return &Router{
		modules: make(map[string]*Module),
		native:  http.NewServeMux(),
	}
}

// HandleNative registers handler for pattern outside every module.
func (r *Router) HandleNative(pattern string, handler http.Handler) {
	r.native.Handle(pattern, handler)
}

// Mount claims m's prefix. Mounting a prefix twice fails with ErrPrefixMounted.
func (r *Router) Mount(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[m.prefix]; ok {
		return fmt.Errorf("%w: %s", ErrPrefixMounted, m.prefix)
	}
	r.modules[m.prefix] = m
	return nil
}

// Prefixes lists the mounted prefixes in order.
func (r *Router) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefixes := make([]string, 0, len(r.modules))
	for p := range r.modules {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	return prefixes
}

// ServeHTTP ignores one trailing slash when matching, and never modifies req.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
		req = withPath(req, path)
	}

	segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")

	r.mu.RLock()
	m, ok := r.modules["/"+segment]
	r.mu.RUnlock()

	if ok {
		m.Serve(w, req)
		return
	}
	r.native.ServeHTTP(w, req)
}

func withPath(req *http.Request, path string) *http.Request {
	request := req.Clone(req.Context())
	request.URL = new(url.URL)
	*request.URL = *req.URL
	request.URL.Path = path
	request.URL.RawPath = ""
	return request
}

func extractPath(fullPath, prefix string) string {
	path := strings.TrimPrefix(fullPath, prefix)
	if path == "" {
		return "/"
	}
	return path
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
