package core

import (
	"errors"
	"time"
)

// Defaults applied by NewWithConfig
const (
	DefaultReadBufferSize = 8192
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultPollInterval   = time.Millisecond
	DefaultResultBuffer   = 1024
)

// Error definitions
var (
	ErrServerClosed        = errors.New("helium: server closed")
	ErrServerRunning       = errors.New("helium: server already running")
	ErrUnsupportedListener = errors.New("helium: listener is not a TCP listener")
	ErrWriteTimeout        = errors.New("helium: write timed out")
)
