package core

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/searchktools/helium/core/correlator"
	"github.com/searchktools/helium/core/http"
	"github.com/searchktools/helium/core/middleware"
	"github.com/searchktools/helium/core/observability"
	"github.com/searchktools/helium/core/poller"
	"github.com/searchktools/helium/core/pools"
	"github.com/searchktools/helium/core/router"
)

// Config tunes a Server. Zero fields take the package defaults.
type Config struct {
	// MaxWorkers is the size of the worker pool (NumCPU when 0)
	MaxWorkers uint
	// ReadBufferSize bounds the single read taken from each connection
	ReadBufferSize int
	// ReadTimeout bounds how long an accepted connection may stay silent.
	// Negative disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one whole response. Negative disables it.
	WriteTimeout time.Duration
	// PollInterval is the longest the acceptor loop waits for I/O before
	// draining finished responses
	PollInterval time.Duration
	// ResultBuffer is the capacity of the delivery channel
	ResultBuffer int
	// Keys selects the correlation key generator
	Keys correlator.KeyMode

	Logger   *log.Logger
	Registry *prometheus.Registry
}

func (c *Config) applyDefaults() {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ResultBuffer <= 0 {
		c.ResultBuffer = DefaultResultBuffer
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

// Server accepts connections on a single acceptor loop, hands each buffered
// request to a fixed worker pool and writes the responses back.
type Server struct {
	cfg     Config
	log     *log.Logger
	router  *router.Router
	chain   *middleware.Pipeline
	metrics *observability.Metrics

	queue   *pools.Queue[WorkItem]
	workers *pools.WorkerPool[WorkItem]
	table   *correlator.Table[*conn]
	results chan Delivery
	bufs    *pools.BytePool

	// loop-owned
	poller   poller.Poller
	pending  map[int]*conn
	writing  map[int]*conn
	lastReap time.Time

	running   atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	addrMu sync.Mutex
	addr   net.Addr

	stats struct {
		accepted atomic.Uint64
		written  atomic.Uint64
		dropped  atomic.Uint64
		failed   atomic.Uint64
		timedOut atomic.Uint64
	}
}

// New creates a server with maxWorkers workers and default settings
func New(maxWorkers uint) *Server {
	return NewWithConfig(Config{MaxWorkers: maxWorkers})
}

// NewWithConfig creates a server from cfg
func NewWithConfig(cfg Config) *Server {
	cfg.applyDefaults()

	keys, err := correlator.NewKeyGenerator(cfg.Keys)
	if err != nil {
		cfg.Logger.Printf("⚠️  %v, using %s keys", err, correlator.KeysSequential)
		keys = correlator.NewSequential()
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		router:  router.New(),
		chain:   middleware.NewPipeline(),
		metrics: observability.NewMetrics(cfg.Registry),
		queue:   pools.NewQueue[WorkItem](),
		table:   correlator.NewTable[*conn](keys),
		results: make(chan Delivery, cfg.ResultBuffer),
		bufs:    pools.NewBytePool(),
		pending: make(map[int]*conn),
		writing: make(map[int]*conn),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.workers = pools.NewWorkerPool(int(cfg.MaxWorkers), s.queue, s.process)
	s.workers.OnExit = s.workerExited
	return s
}

// Use appends middlewares. They wrap routes registered after the call.
func (s *Server) Use(mws ...middleware.Middleware) {
	s.chain.Use(mws...)
}

// Handle registers handler for method and path. Routes must be registered
// before Serve.
func (s *Server) Handle(method http.Method, path string, handler router.Handler) error {
	if handler == nil {
		return router.ErrInvalidRoute
	}
	return s.router.Handle(method, path, s.chain.Then(handler))
}

func (s *Server) mustHandle(method http.Method, path string, handler router.Handler) {
	if err := s.Handle(method, path, handler); err != nil {
		panic(err)
	}
}

// GET registers a GET route
func (s *Server) GET(path string, handler router.Handler) {
	s.mustHandle(http.GET, path, handler)
}

// POST registers a POST route
func (s *Server) POST(path string, handler router.Handler) {
	s.mustHandle(http.POST, path, handler)
}

// PUT registers a PUT route
func (s *Server) PUT(path string, handler router.Handler) {
	s.mustHandle(http.PUT, path, handler)
}

// DELETE registers a DELETE route
func (s *Server) DELETE(path string, handler router.Handler) {
	s.mustHandle(http.DELETE, path, handler)
}

// PATCH registers a PATCH route
func (s *Server) PATCH(path string, handler router.Handler) {
	s.mustHandle(http.PATCH, path, handler)
}

// HEAD registers a HEAD route
func (s *Server) HEAD(path string, handler router.Handler) {
	s.mustHandle(http.HEAD, path, handler)
}

// OPTIONS registers an OPTIONS route
func (s *Server) OPTIONS(path string, handler router.Handler) {
	s.mustHandle(http.OPTIONS, path, handler)
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}

// Addr returns the listening address once Serve has started, nil before
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Run listens on addr and serves until Close
func (s *Server) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve runs the acceptor loop on ln until Close. ln must be a
// *net.TCPListener and is closed when Serve returns.
func (s *Server) Serve(ln net.Listener) error {
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return ErrUnsupportedListener
	}
	if !s.running.CompareAndSwap(false, true) {
		ln.Close()
		return ErrServerRunning
	}
	defer func() {
		ln.Close()
		close(s.stopped)
	}()

	select {
	case <-s.done:
		return ErrServerClosed
	default:
	}

	lnFile, err := tcp.File()
	if err != nil {
		return err
	}
	defer lnFile.Close()
	lfd := int(lnFile.Fd())

	if err := unix.SetNonblock(lfd, true); err != nil {
		return err
	}

	s.poller, err = poller.New()
	if err != nil {
		return err
	}
	defer s.poller.Close()

	if err := s.poller.Add(lfd); err != nil {
		return err
	}

	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()

	s.router.Freeze()
	s.workers.Start()
	s.metrics.SetWorkersAlive(s.workers.Alive())

	s.log.Printf("🚀 Helium listening on %s", ln.Addr())
	s.log.Printf("⚙️  %d workers, %d byte reads, %s read / %s write timeout",
		s.workers.Stats().NumWorkers, s.cfg.ReadBufferSize, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
	for _, route := range s.router.Routes() {
		s.log.Printf("   - %s", route)
	}

	s.loop(lfd)
	s.shutdown()
	return ErrServerClosed
}

// Close stops the server immediately. In-flight requests are abandoned and
// their connections closed without a response.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.workers.Close()
	})
	if s.running.Load() {
		<-s.stopped
	}
	return nil
}

// shutdown releases everything the loop owned. Runs on the loop goroutine.
func (s *Server) shutdown() {
	for fd, c := range s.pending {
		c.close()
		delete(s.pending, fd)
	}
	for fd, c := range s.writing {
		c.close()
		delete(s.writing, fd)
	}
	s.table.Drain(func(_ correlator.Key, c *conn) {
		c.close()
	})
	s.metrics.SetInFlight(0)
	s.log.Printf("🛑 Helium stopped")
}

func (s *Server) workerExited(id int, recovered any) {
	if recovered != nil {
		s.log.Printf("❌ Worker %d died: %v", id, recovered)
	}
	s.metrics.SetWorkersAlive(s.workers.Alive())
}
