package muxhandlers

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// RecoveryConfig configures the Recovery middleware behaviour.
type RecoveryConfig struct {
	// LogFunc is an optional callback invoked with the request and the
	// recovered value when a panic occurs. Takes priority over Logger.
	LogFunc func(r *http.Request, err any)

	// Logger receives an error record with the panic value and stack when
	// LogFunc is nil. Defaults to slog.Default().
	Logger *slog.Logger
}

// RecoveryMiddleware returns a middleware that recovers from panics in
// downstream middleware and handlers. When a panic occurs it returns 500
// Internal Server Error together with the State it was given.
//
// A panic raised while the State is detached by a worker job is recovered
// too, but the State stays unusable for the rest of the request.
func RecoveryMiddleware(cfg RecoveryConfig) mux.Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (out *state.State, resp *mux.Response, err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}

			if cfg.LogFunc != nil {
				cfg.LogFunc(r, v)
			} else {
				logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", v),
					slog.String("stack", string(debug.Stack())),
				)
			}

			out, resp, err = s, mux.StatusResponse(http.StatusInternalServerError), nil
		}()

		return next(s, r)
	})
}
