package muxhandlers

import (
	"net/http"
	"os"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ServerConfig configures the Server middleware behaviour.
type ServerConfig struct {
	// Hostname is the value written to the X-Server-Hostname response
	// header. Resolution order: Hostname field, then HostnameEnv
	// environment variable, then os.Hostname.
	Hostname string

	// HostnameEnv is a list of environment variable names checked in
	// order (e.g. ["POD_NAME", "HOSTNAME"]). The first non-empty
	// value is used. Only consulted when Hostname is empty.
	HostnameEnv []string
}

// ServerMiddleware returns a middleware that sets server identification
// response headers. The hostname is resolved once when the middleware is
// created. It returns an error if the hostname cannot be determined.
func ServerMiddleware(cfg ServerConfig) (mux.Middleware, error) {
	hostname := cfg.Hostname

	if hostname == "" {
		for _, env := range cfg.HostnameEnv {
			if v, ok := os.LookupEnv(env); ok && v != "" {
				hostname = v
				break
			}
		}
	}

	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, err
		}

		hostname = h
	}

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		s, resp, err := next(s, r)
		if resp != nil {
			setHeader(resp, "X-Server-Hostname", hostname)
		}
		return s, resp, err
	}), nil
}

// setHeader sets key on resp unless the handler already did.
func setHeader(resp *mux.Response, key, value string) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Header.Get(key) == "" {
		resp.Header.Set(key, value)
	}
}
