package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/vitalvas/gantry/state"
)

var (
	// ErrNoPool is the panic value raised by Run when the request State
	// holds no *Pool. Install one with a pipeline middleware.
	ErrNoPool = errors.New("worker: no pool in request state")

	// ErrAlreadyAwaited is returned by a second call to Future.Await.
	ErrAlreadyAwaited = errors.New("worker: future already awaited")
)

// Job is work that needs request data but must not block the request
// goroutine.
type Job[T any] interface {
	// Prepare runs on the request goroutine. It copies what the work needs
	// out of s and must neither block nor keep s.
	Prepare(s *state.State) PreparedJob[T]
}

// PreparedJob is the State-free half of a Job. Run executes on a pool
// worker.
type PreparedJob[T any] interface {
	Run() (T, error)
}

// JobFunc adapts a function to the Job interface.
type JobFunc[T any] func(s *state.State) PreparedJob[T]

// Prepare implements Job.
func (f JobFunc[T]) Prepare(s *state.State) PreparedJob[T] {
	return f(s)
}

// PreparedFunc adapts a function to the PreparedJob interface.
type PreparedFunc[T any] func() (T, error)

// Run implements PreparedJob.
func (f PreparedFunc[T]) Run() (T, error) {
	return f()
}

// PanicError is the error of a job that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker: job panicked: %v", e.Value)
}

// Future is the pending outcome of a submitted job. It holds the request
// State until Await hands it back.
type Future[T any] struct {
	s       *state.State
	done    chan struct{}
	value   T
	err     error
	awaited atomic.Bool
}

// Run prepares job with s, detaches s and submits the prepared job to the
// pool stored in s. It panics with ErrNoPool when s holds no *Pool and with
// ErrPoolClosed when the pool is closed. Run waits for a free queue slot
// without a deadline; use RunContext to bound that wait.
func Run[T any](s *state.State, job Job[T]) *Future[T] {
	return RunContext(context.Background(), s, job)
}

// RunContext is Run with a context bounding the wait for a queue slot. If
// ctx ends while the queue is full the job never runs, and the returned
// Future completes with ctx.Err() and hands s back on Await.
func RunContext[T any](ctx context.Context, s *state.State, job Job[T]) *Future[T] {
	pool, ok := state.Borrow[*Pool](s)
	if !ok || pool == nil {
		panic(ErrNoPool)
	}

	prepared := job.Prepare(s)

	f := &Future[T]{s: s, done: make(chan struct{})}
	s.Detach()

	err := pool.submit(ctx, func() {
		pool.metrics.started()
		start := time.Now()

		outcome := OutcomeSuccess
		f.value, f.err = runPrepared(prepared)
		var pe *PanicError
		switch {
		case errors.As(f.err, &pe):
			outcome = OutcomePanic
		case f.err != nil:
			outcome = OutcomeError
		}

		pool.metrics.finished(outcome, time.Since(start))
		close(f.done)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrPoolClosed):
		s.Attach()
		panic(err)
	default:
		f.err = err
		close(f.done)
	}

	return f
}

func runPrepared[T any](job PreparedJob[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return job.Run()
}

// Done is closed when the job has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the job and returns the State together with its outcome.
// When ctx ends first, Await returns the State with ctx.Err(); the job
// still runs to completion on the pool and its outcome is discarded.
func (f *Future[T]) Await(ctx context.Context) (*state.State, T, error) {
	var zero T
	if !f.awaited.CompareAndSwap(false, true) {
		return nil, zero, ErrAlreadyAwaited
	}

	select {
	case <-f.done:
		f.s.Attach()
		return f.s, f.value, f.err
	case <-ctx.Done():
		f.s.Attach()
		return f.s, zero, ctx.Err()
	}
}
