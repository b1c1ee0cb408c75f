package pools

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Processor handles one item popped from the queue
type Processor[T any] func(workerID int, item T)

// WorkerPool runs a fixed number of long-lived goroutines that pull items
// from a shared Queue. Each item is handed to exactly one worker. Completion
// order across workers is not FIFO; only the queue itself is.
type WorkerPool[T any] struct {
	numWorkers int
	queue      *Queue[T]
	process    Processor[T]
	started    atomic.Bool
	wg         sync.WaitGroup

	// OnExit, when set before Start, is called as each worker leaves its
	// loop. recovered is non-nil if the worker died from a panic.
	OnExit func(workerID int, recovered any)

	stats struct {
		submitted atomic.Uint64
		processed atomic.Uint64
		panics    atomic.Uint64
		alive     atomic.Int64
	}
}

// NewWorkerPool creates a pool of numWorkers workers bound to queue.
// Workers are not running until Start.
func NewWorkerPool[T any](numWorkers int, queue *Queue[T], process Processor[T]) *WorkerPool[T] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool[T]{
		numWorkers: numWorkers,
		queue:      queue,
		process:    process,
	}
}

// Start launches the workers. Only the first call has an effect.
func (p *WorkerPool[T]) Start() bool {
	if !p.started.CompareAndSwap(false, true) {
		return false
	}

	p.stats.alive.Store(int64(p.numWorkers))
	p.wg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.run(i)
	}
	return true
}

// Submit enqueues item for processing
func (p *WorkerPool[T]) Submit(item T) error {
	if err := p.queue.Push(item); err != nil {
		return err
	}
	p.stats.submitted.Add(1)
	return nil
}

// run is the worker loop. A closed queue or a panic escaping the
// processor ends this worker; the rest of the pool keeps going.
func (p *WorkerPool[T]) run(id int) {
	var recovered any
	defer func() {
		p.stats.alive.Add(-1)
		if p.OnExit != nil {
			p.OnExit(id, recovered)
		}
		p.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.stats.panics.Add(1)
			recovered = r
		}
	}()

	for {
		item, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.process(id, item)
		p.stats.processed.Add(1)
	}
}

// Close closes the queue; workers exit after their current item
func (p *WorkerPool[T]) Close() {
	p.queue.Close()
}

// Wait blocks until every worker has exited
func (p *WorkerPool[T]) Wait() {
	p.wg.Wait()
}

// Alive returns the number of workers still in their loop
func (p *WorkerPool[T]) Alive() int {
	return int(p.stats.alive.Load())
}

// Stats returns pool statistics
func (p *WorkerPool[T]) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers: p.numWorkers,
		Alive:      p.Alive(),
		Submitted:  p.stats.submitted.Load(),
		Processed:  p.stats.processed.Load(),
		Panics:     p.stats.panics.Load(),
		Queued:     p.queue.Len(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers int    `json:"num_workers"`
	Alive      int    `json:"alive"`
	Submitted  uint64 `json:"submitted"`
	Processed  uint64 `json:"processed"`
	Panics     uint64 `json:"panics"`
	Queued     int    `json:"queued"`
}
