// Package worker moves blocking work off the request goroutine onto a fixed
// set of pool goroutines.
//
// A job is split in two phases. Prepare runs on the request goroutine with
// access to the request State and copies out what the work needs. Run then
// executes on a pool worker without the State. While the job is in flight
// the State is detached, and Future.Await hands it back together with the
// job's outcome:
//
//	f := worker.Run(s, worker.JobFunc[int](func(s *state.State) worker.PreparedJob[int] {
//		n := state.MustBorrow[input](s).N
//		return worker.PreparedFunc[int](func() (int, error) { return n + 1, nil })
//	}))
//	s, v, err := f.Await(ctx)
//
// RunContext additionally stops waiting for a queue slot when the request
// context ends.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidPoolSize is returned by NewPool when size is less than 1.
	ErrInvalidPoolSize = errors.New("worker: pool size must be at least 1")

	// ErrInvalidQueueSize is returned by NewPool for a negative queue size.
	ErrInvalidQueueSize = errors.New("worker: queue size must not be negative")

	// ErrPoolClosed is the panic value raised when work is submitted to a
	// closed pool.
	ErrPoolClosed = errors.New("worker: pool is closed")
)

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize sets how many submitted jobs may wait for a free worker.
// Submitting blocks while the queue is full. The default equals the pool
// size.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		p.queueSize = n
	}
}

// WithMetrics reports pool activity to m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// Pool runs jobs on a fixed number of goroutines. It is safe for concurrent
// use and is normally shared by all requests through a pipeline middleware.
type Pool struct {
	size      int
	queueSize int
	metrics   *Metrics

	tasks chan func()
	group errgroup.Group

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewPool starts size workers.
func NewPool(size int, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, ErrInvalidPoolSize
	}

	p := &Pool{size: size, queueSize: size}
	for _, opt := range opts {
		opt(p)
	}
	if p.queueSize < 0 {
		return nil, ErrInvalidQueueSize
	}

	p.tasks = make(chan func(), p.queueSize)
	for range size {
		p.group.Go(func() error {
			for task := range p.tasks {
				task()
			}
			return nil
		})
	}

	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Close stops accepting jobs, waits for queued and running jobs to finish
// and stops the workers. Close is idempotent.
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		err = p.group.Wait()
	})
	return err
}

// submit queues task. It blocks while the queue is full and gives up with
// ctx.Err() when ctx ends first.
func (p *Pool) submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.metrics.queued()
	select {
	case p.tasks <- task:
		return nil
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		p.metrics.dropped()
		return ctx.Err()
	}
}
