package muxhandlers

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// AccessLogConfig configures the Access Log middleware behaviour.
type AccessLogConfig struct {
	// Logger receives one record per request. Defaults to slog.Default().
	Logger *slog.Logger

	// Level is the level of successful requests. Responses with a 5xx
	// status and requests that returned an error are logged at error level.
	Level slog.Level

	// SkipPaths lists request paths that are not logged, such as health
	// checks.
	SkipPaths []string
}

// AccessLogMiddleware returns a middleware that writes one structured log
// record per request with method, path, route pattern, status, duration and
// request ID when one is present. Place it after RequestIDMiddleware in the
// pipeline to include the ID.
func AccessLogMiddleware(cfg AccessLogConfig) mux.Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := cfg.Level
	skip := slices.Clone(cfg.SkipPaths)

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		if slices.Contains(skip, r.URL.Path) {
			return next(s, r)
		}

		start := time.Now()
		s, resp, err := next(s, r)
		elapsed := time.Since(start)

		status := responseStatus(resp, err)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
		}

		if s != nil && !s.Detached() {
			if route := mux.CurrentRoute(s); route != nil {
				attrs = append(attrs, slog.String("route", route.Pattern()))
			}
			if id := RequestIDFrom(s); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
		}

		lvl := level
		if err != nil {
			lvl = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		} else if status >= http.StatusInternalServerError {
			lvl = slog.LevelError
		}

		logger.LogAttrs(r.Context(), lvl, "request", attrs...)

		return s, resp, err
	})
}
