package correlator

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Ticket identifies one registration. Gen tells apart two connections
// that were given the same Key.
type Ticket struct {
	Key Key
	Gen uint64
}

type entry[C any] struct {
	conn C
	gen  uint64
}

// Table maps in-flight correlation keys to the connections waiting for a
// response. An entry is inserted right after a connection's request is read
// and removed by whoever writes the response, so each connection is owned
// by the table for exactly that window.
type Table[C any] struct {
	keys  KeyGenerator
	gen   atomic.Uint64
	conns *xsync.MapOf[Key, entry[C]]
}

// NewTable creates a table drawing keys from gen (Sequential when nil)
func NewTable[C any](gen KeyGenerator) *Table[C] {
	if gen == nil {
		gen = NewSequential()
	}
	return &Table[C]{
		keys:  gen,
		conns: xsync.NewMapOf[Key, entry[C]](),
	}
}

// Register stores conn under a fresh key. If the key is already present the
// older entry is overwritten and returned as evicted; the caller owns it.
func (t *Table[C]) Register(conn C) (ticket Ticket, evicted C, replaced bool) {
	ticket = Ticket{Key: t.keys.Next(), Gen: t.gen.Add(1)}
	old, replaced := t.conns.LoadAndStore(ticket.Key, entry[C]{conn: conn, gen: ticket.Gen})
	return ticket, old.conn, replaced
}

// Take removes and returns the connection registered under ticket. It
// misses when the key is gone or now belongs to a later registration.
func (t *Table[C]) Take(ticket Ticket) (C, bool) {
	var (
		taken C
		found bool
	)
	t.conns.Compute(ticket.Key, func(old entry[C], loaded bool) (entry[C], bool) {
		if !loaded {
			return old, true
		}
		if old.gen != ticket.Gen {
			return old, false
		}
		taken, found = old.conn, true
		return old, true
	})
	return taken, found
}

// Len returns the number of connections awaiting a response
func (t *Table[C]) Len() int {
	return t.conns.Size()
}

// Drain removes every entry, calling fn for each. Used on hard stop.
func (t *Table[C]) Drain(fn func(Key, C)) {
	t.conns.Range(func(key Key, _ entry[C]) bool {
		if e, ok := t.conns.LoadAndDelete(key); ok {
			fn(key, e.conn)
		}
		return true
	})
}
