// Package pool provides a bounded worker pool for offloading CPU-bound
// and blocking work from the orchestration path.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Task is one unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of worker goroutines with a
// bounded queue. Skill and sandbox dispatch go through here so the
// orchestration loop never blocks on heavy work.
type WorkerPool struct {
	tasks  chan *taskWrapper
	closed atomic.Bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

type taskWrapper struct {
	ctx    context.Context
	task   Task
	result chan error
	// taken settles the race between a worker picking the task up and
	// the submitter abandoning it on cancellation: whoever wins the CAS
	// owns the task's fate, so it either runs to completion or never
	// starts.
	taken atomic.Bool
}

// Config sizes the pool.
type Config struct {
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
	QueueSize  int `json:"queue_size" yaml:"queue_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxWorkers: 8, QueueSize: 64}
}

// New creates a pool and starts its workers.
func New(cfg Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	p := &WorkerPool{tasks: make(chan *taskWrapper, cfg.QueueSize)}
	for i := 0; i < cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for w := range p.tasks {
		if !w.taken.CompareAndSwap(false, true) {
			// Abandoned by its submitter; must never run.
			continue
		}
		if err := w.ctx.Err(); err != nil {
			w.result <- err
			continue
		}
		err := w.task(w.ctx)
		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		w.result <- err
	}
}

// SubmitWait runs the task on a worker and waits for it to finish.
// When it returns, the task is guaranteed not to be running anymore:
// cancelling ctx before a worker picks the task up abandons it and it
// never starts, while a task already picked up runs to completion (it
// receives ctx and is expected to honor it) before SubmitWait returns.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	w := &taskWrapper{ctx: ctx, task: task, result: make(chan error, 1)}
	select {
	case p.tasks <- w:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		if w.taken.CompareAndSwap(false, true) {
			// No worker had picked the task up; it will be skipped.
			return ctx.Err()
		}
		// A worker beat us to it. Wait the task out so it cannot
		// outlive this call or race on anything the closure captured.
		return <-w.result
	}
}

// Stats returns submitted/completed/failed counts.
func (p *WorkerPool) Stats() (submitted, completed, failed int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load()
}

// Close stops accepting tasks and waits for in-flight work to drain.
func (p *WorkerPool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.tasks)
		p.wg.Wait()
	}
}
