package muxhandlers

import (
	"net/http"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
	"github.com/vitalvas/gantry/worker"
)

// WorkerPoolMiddleware returns a middleware that stores pool in the State so
// handlers further down can hand jobs to it with worker.Run.
func WorkerPoolMiddleware(pool *worker.Pool) mux.Middleware {
	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		state.Put(s, pool)
		return next(s, r)
	})
}
