package pools

import (
	"runtime/debug"
)

// GCConfig holds GC tuning parameters. Zero fields leave the runtime
// setting untouched.
type GCConfig struct {
	// GOGC sets the garbage collection target percentage
	GOGC int
	// MemoryLimit sets the soft memory limit in bytes
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns the settings it replaced, so the
// caller can restore them.
func ApplyGCConfig(cfg GCConfig) GCConfig {
	var prev GCConfig
	if cfg.GOGC > 0 {
		prev.GOGC = debug.SetGCPercent(cfg.GOGC)
	}
	if cfg.MemoryLimit > 0 {
		prev.MemoryLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	return prev
}
