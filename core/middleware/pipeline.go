package middleware

import (
	"log"
	"sync"
	"time"

	"github.com/searchktools/helium/core/http"
	"github.com/searchktools/helium/core/router"
)

// Middleware wraps a handler. It may answer on its own without calling next.
type Middleware func(next router.Handler) router.Handler

// Pipeline is an ordered middleware chain. The first middleware added is
// the outermost.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates an empty pipeline
func NewPipeline(mws ...Middleware) *Pipeline {
	p := &Pipeline{middlewares: make([]Middleware, 0, 8)}
	return p.Use(mws...)
}

// Use appends middlewares to the pipeline
func (p *Pipeline) Use(mws ...Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, mws...)
	return p
}

// Len returns the number of middlewares
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Then wraps final with every middleware. The chain is built once, at
// registration time.
func (p *Pipeline) Then(final router.Handler) router.Handler {
	h := final
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		h = p.middlewares[i](h)
	}
	return h
}

// Common middleware implementations

// Recovery turns a panic in next into a 500 and logs it
func Recovery(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next router.Handler) router.Handler {
		return router.HandlerFunc(func(req *http.Request) (resp http.TaskResponse) {
			defer func() {
				if err := recover(); err != nil {
					logger.Printf("Panic recovered on %s %s: %v", req.Method, req.Path, err)
					resp = http.InternalServerError()
				}
			}()
			return next.Execute(req)
		})
	}
}

// Logger logs method, path, status and latency of every request
func Logger(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next router.Handler) router.Handler {
		return router.HandlerFunc(func(req *http.Request) http.TaskResponse {
			start := time.Now()
			resp := next.Execute(req)
			logger.Printf("[%s] %s %d %s", req.Method, req.Path, resp.Status, time.Since(start))
			return resp
		})
	}
}

// MaxBody rejects bodies larger than limit bytes with 413
func MaxBody(limit int) Middleware {
	return func(next router.Handler) router.Handler {
		return router.HandlerFunc(func(req *http.Request) http.TaskResponse {
			if len(req.Body) > limit {
				return http.StatusResponse(http.StatusContentTooLarge)
			}
			return next.Execute(req)
		})
	}
}

// RateLimiter allows requestsPerSecond requests per one-second window
// across every route it wraps; excess requests get 503.
func RateLimiter(requestsPerSecond int) Middleware {
	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = time.Now()
	)

	allow := func() bool {
		mu.Lock()
		defer mu.Unlock()

		if now := time.Now(); now.Sub(lastRefill) >= time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}
		if tokens > 0 {
			tokens--
			return true
		}
		return false
	}

	return func(next router.Handler) router.Handler {
		return router.HandlerFunc(func(req *http.Request) http.TaskResponse {
			if !allow() {
				return http.StatusResponse(http.StatusServiceUnavailable)
			}
			return next.Execute(req)
		})
	}
}
