package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/searchktools/helium/core/http"
)

var (
	ErrDuplicateRoute = errors.New("router: route already registered")
	ErrRouterFrozen   = errors.New("router: routes cannot be added after the server has started")
	ErrInvalidRoute   = errors.New("router: invalid route")
)

// RouteKey identifies a route. Path is stored in sanitized form.
type RouteKey struct {
	Path   string
	Method http.Method
}

func (k RouteKey) String() string {
	return k.Method.String() + " " + k.Path
}

// Router maps (path, method) to a Handler. It is built during setup and
// frozen before the worker pool starts; after Freeze it is a read-only
// snapshot and Lookup takes no lock.
type Router struct {
	mu     sync.Mutex
	routes map[RouteKey]Handler
	frozen bool
}

// New creates an empty router
func New() *Router {
	return &Router{
		routes: make(map[RouteKey]Handler, 16),
	}
}

// Handle registers handler for (method, path). Registering the same
// key twice fails with ErrDuplicateRoute.
func (r *Router) Handle(method http.Method, path string, handler Handler) error {
	if !method.Valid() || path == "" || handler == nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidRoute, method, path)
	}

	key := RouteKey{Path: http.Sanitize(path), Method: method}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}
	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
	}
	r.routes[key] = handler
	return nil
}

// Freeze makes the router read-only. It is idempotent.
func (r *Router) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called
func (r *Router) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// Lookup finds the handler for (method, path). Only valid once the router
// is frozen, or from the goroutine doing the registration.
func (r *Router) Lookup(method http.Method, path string) (Handler, bool) {
	h, ok := r.routes[RouteKey{Path: http.Sanitize(path), Method: method}]
	return h, ok
}

// Routes returns the registered keys sorted by path, then method
func (r *Router) Routes() []RouteKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]RouteKey, 0, len(r.routes))
	for k := range r.routes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Method < keys[j].Method
	})
	return keys
}

// Len returns the number of registered routes
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}
