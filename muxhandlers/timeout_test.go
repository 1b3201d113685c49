package muxhandlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
	"github.com/vitalvas/gantry/worker"
)

// slowHandler waits for d or the request context, whichever ends first.
func slowHandler(d time.Duration) handlerFunc {
	return func(s *state.State, req *http.Request) (*state.State, *mux.Response, error) {
		select {
		case <-time.After(d):
			return s, mux.Text(http.StatusOK, "ok"), nil
		case <-req.Context().Done():
			return s, nil, req.Context().Err()
		}
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("config validation", func(t *testing.T) {
		tests := []struct {
			name    string
			config  TimeoutConfig
			wantErr error
		}{
			{"zero duration", TimeoutConfig{Duration: 0}, ErrInvalidTimeout},
			{"negative duration", TimeoutConfig{Duration: -1 * time.Second}, ErrInvalidTimeout},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := TimeoutMiddleware(tt.config)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}

		t.Run("valid duration", func(t *testing.T) {
			_, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Second})
			assert.NoError(t, err)
		})
	})

	t.Run("handler completes before timeout", func(t *testing.T) {
		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 2 * time.Second})
		require.NoError(t, err)

		w := serve(newRouter(t, okHandler, mw), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)

		body, err := io.ReadAll(w.Body)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("handler exceeds timeout", func(t *testing.T) {
		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 50 * time.Millisecond})
		require.NoError(t, err)

		w := serve(newRouter(t, slowHandler(5*time.Second), mw), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("custom timeout message", func(t *testing.T) {
		mw, err := TimeoutMiddleware(TimeoutConfig{
			Duration: 50 * time.Millisecond,
			Message:  "request timed out",
		})
		require.NoError(t, err)

		w := serve(newRouter(t, slowHandler(5*time.Second), mw), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		body, err := io.ReadAll(w.Body)
		require.NoError(t, err)
		assert.Equal(t, "request timed out", string(body))
	})

	t.Run("empty message uses status text", func(t *testing.T) {
		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 50 * time.Millisecond})
		require.NoError(t, err)

		w := serve(newRouter(t, slowHandler(5*time.Second), mw), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), w.Body.String())
	})

	t.Run("bounds waiting on a worker job", func(t *testing.T) {
		pool, err := worker.NewPool(1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pool.Close() })

		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 50 * time.Millisecond})
		require.NoError(t, err)

		release := make(chan struct{})
		defer close(release)

		var attached bool
		r := newRouter(t, func(s *state.State, req *http.Request) (*state.State, *mux.Response, error) {
			f := worker.Run[int](s, worker.JobFunc[int](func(*state.State) worker.PreparedJob[int] {
				return worker.PreparedFunc[int](func() (int, error) {
					<-release
					return 1, nil
				})
			}))

			s, _, err := f.Await(req.Context())
			attached = !s.Detached()
			return s, nil, err
		}, WorkerPoolMiddleware(pool), mw)

		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.True(t, attached)
	})

	t.Run("bounds waiting for a free worker", func(t *testing.T) {
		pool, err := worker.NewPool(1, worker.WithQueueSize(0))
		require.NoError(t, err)
		t.Cleanup(func() { _ = pool.Close() })

		held := state.New()
		state.Put(held, pool)

		release := make(chan struct{})
		busy := worker.Run[int](held, worker.JobFunc[int](func(*state.State) worker.PreparedJob[int] {
			return worker.PreparedFunc[int](func() (int, error) {
				<-release
				return 0, nil
			})
		}))
		defer func() {
			close(release)
			<-busy.Done()
		}()

		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 50 * time.Millisecond})
		require.NoError(t, err)

		r := newRouter(t, func(s *state.State, req *http.Request) (*state.State, *mux.Response, error) {
			f := worker.RunContext[int](req.Context(), s, worker.JobFunc[int](func(*state.State) worker.PreparedJob[int] {
				return worker.PreparedFunc[int](func() (int, error) { return 1, nil })
			}))

			s, _, err := f.Await(context.Background())
			return s, nil, err
		}, WorkerPoolMiddleware(pool), mw)

		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("parent context is kept", func(t *testing.T) {
		type key struct{}

		mw, err := TimeoutMiddleware(TimeoutConfig{Duration: time.Second})
		require.NoError(t, err)

		var got any
		r := newRouter(t, func(s *state.State, req *http.Request) (*state.State, *mux.Response, error) {
			got = req.Context().Value(key{})
			return okHandler(s, req)
		}, mw)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		serve(r, req.WithContext(context.WithValue(req.Context(), key{}, "v")))

		assert.Equal(t, "v", got)
	})
}

func BenchmarkTimeoutMiddleware(b *testing.B) {
	mw, err := TimeoutMiddleware(TimeoutConfig{Duration: 5 * time.Second})
	if err != nil {
		b.Fatal(err)
	}
	r := newRouter(b, okHandler, mw)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	for b.Loop() {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
}
