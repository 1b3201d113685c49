package muxhandlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ErrInvalidTimeout is returned when TimeoutConfig.Duration is not greater
// than zero.
var ErrInvalidTimeout = errors.New("timeout: duration must be greater than zero")

// TimeoutConfig configures the Timeout middleware behaviour.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the rest of the pipeline to
	// complete. Must be greater than zero.
	Duration time.Duration

	// Message is the response body returned when the deadline passes.
	// Defaults to the status text of 503 Service Unavailable.
	Message string
}

// TimeoutMiddleware returns a middleware that attaches a deadline to the
// request context. Downstream code observes it through r.Context(), and
// worker.RunContext and worker.Future.Await return early when it passes. If
// the deadline has passed once the rest of the pipeline returns, the
// response is replaced with 503 Service Unavailable.
//
// It returns ErrInvalidTimeout if Duration is not greater than zero.
func TimeoutMiddleware(cfg TimeoutConfig) (mux.Middleware, error) {
	if cfg.Duration <= 0 {
		return nil, ErrInvalidTimeout
	}

	duration := cfg.Duration
	message := cfg.Message
	if message == "" {
		message = http.StatusText(http.StatusServiceUnavailable)
	}

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		ctx, cancel := context.WithTimeout(r.Context(), duration)
		defer cancel()

		s, resp, err := next(s, r.WithContext(ctx))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return s, mux.Text(http.StatusServiceUnavailable, message), nil
		}

		return s, resp, err
	}), nil
}
