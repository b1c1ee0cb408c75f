package pools

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out fixed-size read buffers in a few size classes.
// A buffer is owned by whoever holds it until Put.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// Size classes for single-shot request reads
var defaultSizes = []int{
	2048,
	8192,
	32768,
	65536,
}

// NewBytePool creates a byte pool with the default size classes
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom ascending size classes
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		bp.pools[i] = &sync.Pool{
			New: func() any {
				bp.misses.Add(1)
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a slice of exactly size bytes backed by the smallest class
// that fits. Oversized requests are allocated directly.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)
	for i, classSize := range bp.sizes {
		if size <= classSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}

	bp.misses.Add(1)
	return make([]byte, size)
}

// Put returns buf to its class. Slices not obtained from Get are dropped.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, classSize := range bp.sizes {
		if capacity == classSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			bp.puts.Add(1)
			return
		}
	}
}

// BytePoolStats contains pool counters
type BytePoolStats struct {
	Gets   uint64 `json:"gets"`
	Puts   uint64 `json:"puts"`
	Misses uint64 `json:"misses"`
}

// Stats returns a snapshot of the pool counters
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:   bp.gets.Load(),
		Puts:   bp.puts.Load(),
		Misses: bp.misses.Load(),
	}
}
