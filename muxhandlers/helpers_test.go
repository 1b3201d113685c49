package muxhandlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

type handlerFunc = func(s *state.State, r *http.Request) (*state.State, *mux.Response, error)

func okHandler(s *state.State, _ *http.Request) (*state.State, *mux.Response, error) {
	return s, mux.Text(http.StatusOK, "ok"), nil
}

// newRouter serves h on every method at /test behind a single pipeline
// holding mws.
func newRouter(tb testing.TB, h handlerFunc, mws ...mux.Middleware) *mux.Router {
	tb.Helper()

	b := mux.NewPipelineSet()
	p := b.Add(mux.NewPipeline("test").Add(mws...).Build())

	r, err := mux.BuildRouter(mux.Chain(p), b.Finalize(), func(rb *mux.RouterBuilder) {
		rb.Request([]string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		}, "/test").ToFunc(h)
	})
	require.NoError(tb, err)

	return r
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
