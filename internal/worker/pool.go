package worker

import (
	"context"
	"sync"
)

// Task represents a unit of work for the worker pool. Tasks are never
// retried automatically: the carrier protocol's handshake tokens are
// single-use, so a failed task must decide about retrying itself.
type Task interface {
	Process(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Process implements Task.
func (f TaskFunc) Process(ctx context.Context) error { return f(ctx) }

// Pool manages a fixed set of worker goroutines draining a bounded task
// queue.
type Pool struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	workers  int
	tasks    chan Task
	queueCap int

	errMu   sync.Mutex
	onError func(error)
}

// Stats holds monitoring information about the worker pool.
type Stats struct {
	Workers     int
	QueueLength int
}

// NewPool creates a new Pool with the given number of workers.
func NewPool(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	queueCap := 64
	return &Pool{
		ctx:      ctx,
		cancel:   cancel,
		workers:  workers,
		tasks:    make(chan Task, queueCap),
		queueCap: queueCap,
	}
}

// OnError registers a callback invoked with every task error.
func (p *Pool) OnError(fn func(error)) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.onError = fn
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// Stop signals all workers to exit and waits for them to finish.
func (p *Pool) Stop() {
	p.cancel()
	close(p.tasks)
	p.wg.Wait()
}

// Submit adds a task to the queue, returning false when the queue is full.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false // backpressure: queue is full
	}
}

// workerLoop is the main loop for each worker goroutine.
func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := task.Process(p.ctx); err != nil {
				p.errMu.Lock()
				fn := p.onError
				p.errMu.Unlock()
				if fn != nil {
					fn(err)
				}
			}
		}
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// PoolStats returns current statistics about the worker pool.
func (p *Pool) PoolStats() Stats {
	return Stats{
		Workers:     p.workers,
		QueueLength: len(p.tasks),
	}
}
