package mux

import (
	"net/http"
	"strings"

	"github.com/vitalvas/gantry/state"
)

// CORSMethodMiddleware sets the Access-Control-Allow-Methods response header
// (Fetch Standard, CORS protocol) to every method registered on the node of
// the matched route. Responses that already carry the header are left alone.
func CORSMethodMiddleware() Middleware {
	return MiddlewareFunc(func(s *state.State, req *http.Request, next Next) (*state.State, *Response, error) {
		route := CurrentRoute(s)

		s, resp, err := next(s, req)
		if err != nil || resp == nil || route == nil {
			return s, resp, err
		}

		methods := route.nodeMethods()
		if len(methods) == 0 {
			return s, resp, nil
		}
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		if resp.Header.Get("Access-Control-Allow-Methods") == "" {
			resp.Header.Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
		}
		return s, resp, nil
	})
}
