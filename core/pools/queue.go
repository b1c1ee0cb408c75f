package pools

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push once the queue has been closed
var ErrQueueClosed = errors.New("pools: queue closed")

// Queue is an unbounded FIFO shared by producers and workers. One mutex
// guards it; it is held only while a single element is pushed or popped.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

// NewQueue creates an empty queue
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item at the tail and wakes one waiting worker
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Pop removes the oldest item, blocking while the queue is empty.
// ok is false once the queue is closed; pending items are abandoned.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return item, false
	}
	return q.take(), true
}

// TryPop removes the oldest item without blocking
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.head == len(q.items) {
		return item, false
	}
	return q.take(), true
}

// take pops the head; q.mu must be held
func (q *Queue[T]) take() T {
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the slice
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close marks the queue permanently unavailable and wakes every waiter.
// It is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Closed reports whether Close has been called
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
