package correlator

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

// Key links a queued work item and its eventual response to the
// connection it came from
type Key uint64

// KeyGenerator produces correlation keys. Implementations must be safe for
// concurrent use.
type KeyGenerator interface {
	Next() Key
}

// Sequential hands out strictly increasing keys starting at 1, so two
// in-flight connections can never share one.
type Sequential struct {
	n atomic.Uint64
}

// NewSequential creates a counter-backed generator
func NewSequential() *Sequential {
	return &Sequential{}
}

// Next returns the next key
func (s *Sequential) Next() Key {
	return Key(s.n.Add(1))
}

// Random draws unpredictable 64-bit keys from crypto/rand. Keys are not
// guaranteed unique: on a collision the table keeps the newer connection
// and the older response is dropped.
type Random struct{}

// Next returns a random key
func (Random) Next() Key {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		return Key(uint64(time.Now().UnixNano()))
	}
	return Key(binary.LittleEndian.Uint64(b[:]))
}

// KeyMode names a generator for configuration
type KeyMode string

const (
	KeysSequential KeyMode = "sequential"
	KeysRandom     KeyMode = "random"
)

// NewKeyGenerator returns the generator for mode. Empty selects sequential.
func NewKeyGenerator(mode KeyMode) (KeyGenerator, error) {
	switch mode {
	case "", KeysSequential:
		return NewSequential(), nil
	case KeysRandom:
		return Random{}, nil
	default:
		return nil, fmt.Errorf("correlator: unknown key mode %q", mode)
	}
}
