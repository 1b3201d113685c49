package muxhandlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
	"github.com/vitalvas/gantry/worker"
)

func panicking(v any) handlerFunc {
	return func(*state.State, *http.Request) (*state.State, *mux.Response, error) {
		panic(v)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name          string
		handler       handlerFunc
		logFunc       func(r *http.Request, err any)
		wantCode      int
		wantPanic     bool
		wantLogCalled bool
	}{
		{
			name:     "no panic passes through",
			handler:  okHandler,
			wantCode: http.StatusOK,
		},
		{
			name:      "panic returns 500",
			handler:   panicking("something went wrong"),
			wantCode:  http.StatusInternalServerError,
			wantPanic: true,
		},
		{
			name:          "panic with LogFunc calls logger",
			handler:       panicking("log this"),
			logFunc:       func(_ *http.Request, _ any) {},
			wantCode:      http.StatusInternalServerError,
			wantPanic:     true,
			wantLogCalled: true,
		},
		{
			name:      "panic with integer value",
			handler:   panicking(42),
			wantCode:  http.StatusInternalServerError,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logCalled bool
			var loggedErr any

			cfg := RecoveryConfig{Logger: discard}
			if tt.logFunc != nil {
				cfg.LogFunc = func(r *http.Request, err any) {
					logCalled = true
					loggedErr = err
					tt.logFunc(r, err)
				}
			}

			w := serve(newRouter(t, tt.handler, RecoveryMiddleware(cfg)), httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.wantCode, w.Code)

			if tt.wantLogCalled {
				assert.True(t, logCalled)
				assert.NotNil(t, loggedErr)
			}

			if tt.wantPanic {
				body, err := io.ReadAll(w.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), http.StatusText(http.StatusInternalServerError))
			}
		})
	}

	t.Run("LogFunc receives correct panic value", func(t *testing.T) {
		var loggedValue any

		r := newRouter(t, panicking("expected-value"), RecoveryMiddleware(RecoveryConfig{
			LogFunc: func(_ *http.Request, err any) {
				loggedValue = err
			},
		}))

		w := serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "expected-value", loggedValue)
	})

	t.Run("logs to slog without LogFunc", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		serve(newRouter(t, panicking("boom"), RecoveryMiddleware(RecoveryConfig{Logger: logger})),
			httptest.NewRequest(http.MethodGet, "/test", nil))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "ERROR", rec["level"])
		assert.Equal(t, "panic recovered", rec["msg"])
		assert.Equal(t, "boom", rec["panic"])
		assert.Equal(t, "/test", rec["path"])
		assert.NotEmpty(t, rec["stack"])
	})

	t.Run("recovers panics from later middleware", func(t *testing.T) {
		bad := mux.MiddlewareFunc(func(*state.State, *http.Request, mux.Next) (*state.State, *mux.Response, error) {
			panic("middleware")
		})

		w := serve(newRouter(t, okHandler, RecoveryMiddleware(RecoveryConfig{Logger: discard}), bad),
			httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("answers 500 when the state is still held by a job", func(t *testing.T) {
		pool, err := worker.NewPool(1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pool.Close() })

		touchesStateEarly := func(s *state.State, req *http.Request) (*state.State, *mux.Response, error) {
			worker.Run[int](s, worker.JobFunc[int](func(*state.State) worker.PreparedJob[int] {
				return worker.PreparedFunc[int](func() (int, error) { return 1, nil })
			}))
			state.MustBorrow[*worker.Pool](s)
			return okHandler(s, req)
		}

		var recovered any
		r := newRouter(t, touchesStateEarly,
			RecoveryMiddleware(RecoveryConfig{LogFunc: func(_ *http.Request, err any) { recovered = err }}),
			WorkerPoolMiddleware(pool),
		)

		var w *httptest.ResponseRecorder
		require.NotPanics(t, func() {
			w = serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, state.ErrDetached, recovered)
	})
}

func BenchmarkRecoveryMiddleware(b *testing.B) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	b.Run("no panic", func(b *testing.B) {
		r := newRouter(b, okHandler, RecoveryMiddleware(RecoveryConfig{Logger: discard}))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)

		for b.Loop() {
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	})

	b.Run("panic recovery", func(b *testing.B) {
		r := newRouter(b, panicking("bench"), RecoveryMiddleware(RecoveryConfig{Logger: discard}))
		req := httptest.NewRequest(http.MethodGet, "/test", nil)

		for b.Loop() {
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
