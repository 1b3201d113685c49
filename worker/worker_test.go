package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gantry/state"
)

type input struct {
	N int
}

// incrementJob reads input in Prepare and adds one on the worker.
type incrementJob struct{}

func (incrementJob) Prepare(s *state.State) PreparedJob[int] {
	n := state.MustBorrow[input](s).N
	return PreparedFunc[int](func() (int, error) {
		return n + 1, nil
	})
}

func newPool(t *testing.T, size int, opts ...Option) *Pool {
	t.Helper()

	p, err := NewPool(size, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func requestState(p *Pool) *state.State {
	s := state.New()
	state.Put(s, p)
	return s
}

func TestNewPool(t *testing.T) {
	t.Run("rejects zero workers", func(t *testing.T) {
		_, err := NewPool(0)
		assert.ErrorIs(t, err, ErrInvalidPoolSize)
	})

	t.Run("rejects negative queue", func(t *testing.T) {
		_, err := NewPool(1, WithQueueSize(-1))
		assert.ErrorIs(t, err, ErrInvalidQueueSize)
	})

	t.Run("reports its size", func(t *testing.T) {
		assert.Equal(t, 3, newPool(t, 3).Size())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		p, err := NewPool(2)
		require.NoError(t, err)
		assert.NoError(t, p.Close())
		assert.NoError(t, p.Close())
	})
}

func TestRun(t *testing.T) {
	t.Run("returns the same state with the result", func(t *testing.T) {
		p := newPool(t, 2)
		s := requestState(p)
		state.Put(s, input{N: 41})

		f := Run[int](s, incrementJob{})
		assert.True(t, s.Detached())

		got, v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Same(t, s, got)
		assert.Equal(t, 42, v)
		assert.False(t, got.Detached())
		assert.Equal(t, input{N: 41}, state.MustBorrow[input](got))
	})

	t.Run("runs closure jobs", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)

		f := Run[string](s, JobFunc[string](func(*state.State) PreparedJob[string] {
			return PreparedFunc[string](func() (string, error) { return "done", nil })
		}))

		_, v, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("returns job errors with the state", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)
		boom := errors.New("boom")

		f := Run[int](s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) { return 0, boom })
		}))

		got, _, err := f.Await(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Same(t, s, got)
	})

	t.Run("turns panics into PanicError", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)

		f := Run[int](s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) { panic("kaboom") })
		}))

		_, _, err := f.Await(context.Background())
		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "kaboom", pe.Value)
		assert.NotEmpty(t, pe.Stack)
	})

	t.Run("panics without a pool in state", func(t *testing.T) {
		assert.PanicsWithValue(t, ErrNoPool, func() {
			Run[int](state.New(), incrementJob{})
		})
	})

	t.Run("panics on a closed pool and keeps the state usable", func(t *testing.T) {
		p, err := NewPool(1)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		s := requestState(p)
		state.Put(s, input{N: 1})

		assert.PanicsWithValue(t, ErrPoolClosed, func() {
			Run[int](s, incrementJob{})
		})
		assert.False(t, s.Detached())
	})

	t.Run("state access panics while the job is in flight", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)
		release := make(chan struct{})

		f := Run[int](s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) {
				<-release
				return 1, nil
			})
		}))

		assert.PanicsWithValue(t, state.ErrDetached, func() {
			state.Has[input](s)
		})

		close(release)
		_, _, err := f.Await(context.Background())
		require.NoError(t, err)
	})

	t.Run("await on cancelled context returns the state", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)
		release := make(chan struct{})
		var finished atomic.Bool

		f := Run[int](s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) {
				<-release
				finished.Store(true)
				return 1, nil
			})
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		got, v, err := f.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Same(t, s, got)
		assert.Zero(t, v)
		assert.False(t, got.Detached())

		close(release)
		<-f.Done()
		assert.True(t, finished.Load())
	})

	t.Run("second await fails", func(t *testing.T) {
		p := newPool(t, 1)
		s := requestState(p)
		state.Put(s, input{N: 1})

		f := Run[int](s, incrementJob{})
		_, _, err := f.Await(context.Background())
		require.NoError(t, err)

		got, _, err := f.Await(context.Background())
		assert.ErrorIs(t, err, ErrAlreadyAwaited)
		assert.Nil(t, got)
	})
}

func TestRunContext(t *testing.T) {
	blockWorker := func(t *testing.T, p *Pool) {
		t.Helper()

		release := make(chan struct{})
		f := Run[int](requestState(p), JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) {
				<-release
				return 0, nil
			})
		}))
		t.Cleanup(func() {
			close(release)
			<-f.Done()
		})
	}

	t.Run("gives up on a full queue when the context ends", func(t *testing.T) {
		m := NewMetrics("test")
		p := newPool(t, 1, WithQueueSize(0), WithMetrics(m))
		blockWorker(t, p)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := requestState(p)
		var ran atomic.Bool
		f := RunContext[int](ctx, s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) {
				ran.Store(true)
				return 1, nil
			})
		}))

		select {
		case <-f.Done():
		case <-time.After(time.Second):
			t.Fatal("future did not complete")
		}

		got, v, err := f.Await(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Same(t, s, got)
		assert.Zero(t, v)
		assert.False(t, got.Detached())
		assert.False(t, ran.Load())
		assert.Equal(t, float64(0), testutil.ToFloat64(m.queue))
	})

	t.Run("waits for a slot until the deadline", func(t *testing.T) {
		p := newPool(t, 1, WithQueueSize(0))
		blockWorker(t, p)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		s := requestState(p)
		state.Put(s, input{N: 1})

		start := time.Now()
		f := RunContext[int](ctx, s, incrementJob{})
		_, _, err := f.Await(context.Background())

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("submits when there is room despite a cancelled context", func(t *testing.T) {
		p := newPool(t, 1, WithQueueSize(1))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s := requestState(p)
		state.Put(s, input{N: 41})

		_, v, err := RunContext[int](ctx, s, incrementJob{}).Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := newPool(t, 2, WithQueueSize(8))

	var running, peak atomic.Int32
	futures := make([]*Future[int], 0, 6)

	for range 6 {
		s := requestState(p)
		futures = append(futures, Run[int](s, JobFunc[int](func(*state.State) PreparedJob[int] {
			return PreparedFunc[int](func() (int, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return 0, nil
			})
		})))
	}

	for _, f := range futures {
		_, _, err := f.Await(context.Background())
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	p := newPool(t, 1, WithMetrics(m))

	run := func(job PreparedFunc[int]) {
		f := Run[int](requestState(p), JobFunc[int](func(*state.State) PreparedJob[int] { return job }))
		_, _, _ = f.Await(context.Background())
		<-f.Done()
	}

	run(func() (int, error) { return 1, nil })
	run(func() (int, error) { return 0, errors.New("fail") })
	run(func() (int, error) { panic("boom") })

	// Done is closed after metrics are recorded.
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues(OutcomeError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobs.WithLabelValues(OutcomePanic)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.queue))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.running))
	assert.Equal(t, 6, testutil.CollectAndCount(m))
}
