package muxhandlers

import (
	"errors"
	"net/http"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ErrInvalidMaxSize is returned when RequestSizeLimitConfig.MaxBytes is not
// greater than zero.
var ErrInvalidMaxSize = errors.New("request size limit: max size must be greater than zero")

// RequestSizeLimitConfig configures the Request Size Limit middleware behaviour.
type RequestSizeLimitConfig struct {
	// MaxBytes is the maximum allowed request body size in bytes.
	// Must be greater than zero.
	MaxBytes int64
}

// RequestSizeLimitMiddleware returns a middleware that limits the size of
// incoming request bodies. Requests declaring a larger Content-Length are
// rejected up front. Otherwise the body is wrapped with http.MaxBytesReader
// and a *http.MaxBytesError returned downstream becomes 413 Request Entity
// Too Large.
//
// It returns ErrInvalidMaxSize if MaxBytes is not greater than zero.
func RequestSizeLimitMiddleware(cfg RequestSizeLimitConfig) (mux.Middleware, error) {
	if cfg.MaxBytes <= 0 {
		return nil, ErrInvalidMaxSize
	}

	maxBytes := cfg.MaxBytes

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		if r.ContentLength > maxBytes {
			return s, mux.StatusResponse(http.StatusRequestEntityTooLarge), nil
		}

		if r.Body != nil && r.Body != http.NoBody {
			limited := *r
			limited.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
			r = &limited
		}

		s, resp, err := next(s, r)

		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return s, mux.StatusResponse(http.StatusRequestEntityTooLarge), nil
		}

		return s, resp, err
	}), nil
}
