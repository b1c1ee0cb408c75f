package app

import (
	"context"
	"errors"
	"log"
	"net"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/helium/config"
	"github.com/searchktools/helium/core"
	"github.com/searchktools/helium/core/pools"
)

// App ties a Server to its configuration and process lifecycle
type App struct {
	cfg    *config.Config
	server *core.Server
}

// New creates an application instance
func New(cfg *config.Config) *App {
	return NewWithServer(cfg, core.NewWithConfig(cfg.Server()))
}

// NewWithServer creates an application around a pre-configured server
func NewWithServer(cfg *config.Config, server *core.Server) *App {
	return &App{
		cfg:    cfg,
		server: server,
	}
}

// Server returns the underlying server for route registration
func (a *App) Server() *core.Server {
	return a.server
}

// Run serves until SIGINT or SIGTERM
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools.ApplyGCConfig(a.cfg.GC())
	log.Printf("🚀 Helium starting on port %d [%s]", a.cfg.Port, a.cfg.Env)

	if err := a.Serve(ctx, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("👋 Bye")
}

// Serve runs the server, and the metrics endpoint when configured, until
// ctx is done or either fails. A nil ln listens on the configured port.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		var err error
		if ln != nil {
			err = a.server.Serve(ln)
		} else {
			err = a.server.Run(a.cfg.Addr())
		}
		if errors.Is(err, core.ErrServerClosed) {
			return nil
		}
		return err
	})

	var metrics *nethttp.Server
	if a.cfg.MetricsAddr != "" {
		mux := nethttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.server.Metrics().Registry(), promhttp.HandlerOpts{}))
		metrics = &nethttp.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Printf("📊 Metrics on %s/metrics", a.cfg.MetricsAddr)
			if err := metrics.ListenAndServe(); !errors.Is(err, nethttp.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("Shutting down...")
		a.server.Close()
		if metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metrics.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
