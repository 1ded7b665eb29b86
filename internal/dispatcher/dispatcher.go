// Package dispatcher fans accepted crawl jobs out to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"sync"

	"github.com/domainscope/sitemapper/internal/worker"
)

// ErrQueueFull is returned by Enqueue when the job buffer has no room and the
// caller's context expires before one opens up.
var ErrQueueFull = errors.New("dispatcher: job queue full")

const defaultQueueSize = 64

// Dispatcher owns the buffered job channel and the worker pool draining it.
// Submission and execution are decoupled: the API accepts a crawl, Enqueue
// buffers it, and whichever worker frees up first runs it.
type Dispatcher struct {
	jobs    chan worker.Job
	workers []*worker.Worker

	mu     sync.Mutex
	closed bool
}

// New creates a Dispatcher buffering up to queueSize jobs. A non-positive
// size falls back to the default.
func New(queueSize int, workers []*worker.Worker) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		jobs:    make(chan worker.Job, queueSize),
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned. Jobs still buffered at shutdown are dropped; their
// store records stay queued.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx, d.jobs)
		}(w)
	}
	<-ctx.Done()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	wg.Wait()
}

// Enqueue buffers a job for the pool. It blocks while the buffer is full and
// gives up when ctx expires.
func (d *Dispatcher) Enqueue(ctx context.Context, job worker.Job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("dispatcher: shut down")
	}
	d.mu.Unlock()

	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ErrQueueFull
	}
}

// Depth reports how many jobs are buffered and not yet picked up.
func (d *Dispatcher) Depth() int {
	return len(d.jobs)
}
