package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/searchktools/helium/core"
	"github.com/searchktools/helium/core/correlator"
	"github.com/searchktools/helium/core/pools"
)

// Config holds all application configuration.
type Config struct {
	Port           int
	Workers        uint
	ReadBufferSize int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PollInterval   time.Duration
	Keys           string
	MetricsAddr    string
	GOGC           int
	MemoryLimit    int64
	Env            string
}

// New loads configuration from the command line, then env vars.
// Invalid input exits the process, as flag.Parse does.
func New() *Config {
	cfg, err := Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load parses args into a Config using fs and applies env overrides
// (PORT, HELIUM_WORKERS). Env values win over flags.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	fs.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	fs.UintVar(&cfg.Workers, "workers", 0, "Worker pool size (0 = one per CPU)")
	fs.IntVar(&cfg.ReadBufferSize, "read-buffer", core.DefaultReadBufferSize, "Bytes read from each connection")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", core.DefaultReadTimeout, "How long an accepted connection may stay silent (negative = no limit)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", core.DefaultWriteTimeout, "Whole-response write timeout (negative = no limit)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", core.DefaultPollInterval, "Longest acceptor wait between response drains")
	fs.StringVar(&cfg.Keys, "keys", string(correlator.KeysSequential), "Correlation keys (sequential/random)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Prometheus listen address, disabled when empty")
	fs.IntVar(&cfg.GOGC, "gogc", 0, "GC target percentage (0 = runtime default)")
	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", 0, "Soft memory limit in bytes (0 = none)")
	fs.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", port, err)
		}
		cfg.Port = p
	}
	if workers := os.Getenv("HELIUM_WORKERS"); workers != "" {
		n, err := strconv.ParseUint(workers, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: invalid HELIUM_WORKERS %q: %w", workers, err)
		}
		cfg.Workers = uint(n)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("config: read buffer must be positive, got %d", c.ReadBufferSize)
	}
	if _, err := correlator.NewKeyGenerator(correlator.KeyMode(c.Keys)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr returns the server listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Server converts c into the core server configuration
func (c *Config) Server() core.Config {
	return core.Config{
		MaxWorkers:     c.Workers,
		ReadBufferSize: c.ReadBufferSize,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		PollInterval:   c.PollInterval,
		Keys:           correlator.KeyMode(c.Keys),
	}
}

// GC returns the runtime tuning requested by c
func (c *Config) GC() pools.GCConfig {
	return pools.GCConfig{GOGC: c.GOGC, MemoryLimit: c.MemoryLimit}
}
