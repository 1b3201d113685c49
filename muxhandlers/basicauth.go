package muxhandlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ErrNoAuthSource is returned when BasicAuthConfig has neither ValidateFunc
// nor Credentials configured.
var ErrNoAuthSource = errors.New("basic auth: at least one of ValidateFunc or Credentials must be set")

// BasicAuthConfig configures the Basic Auth middleware behaviour.
//
// See https://www.rfc-editor.org/rfc/rfc7617
type BasicAuthConfig struct {
	// Realm is the authentication realm sent in the WWW-Authenticate header.
	// Defaults to "Restricted" when empty.
	Realm string

	// ValidateFunc is called to validate credentials dynamically.
	// Takes priority over Credentials when both are set.
	ValidateFunc func(username, password string) bool

	// Credentials is a static map of username -> password pairs.
	// Compared using SHA-256 hashed constant-time comparison to prevent
	// timing attacks, including length-based leaks.
	Credentials map[string]string
}

// BasicAuthUser is the authenticated user name stored in the State by
// BasicAuthMiddleware.
type BasicAuthUser string

// BasicAuthMiddleware returns a middleware that implements HTTP Basic
// Authentication per RFC 7617. It validates the Authorization header and
// short-circuits with 401 Unauthorized when credentials are missing or
// invalid. On success the user name is stored in the State as BasicAuthUser.
//
// It returns ErrNoAuthSource if both ValidateFunc and Credentials are nil/empty.
func BasicAuthMiddleware(cfg BasicAuthConfig) (mux.Middleware, error) {
	if cfg.ValidateFunc == nil && len(cfg.Credentials) == 0 {
		return nil, ErrNoAuthSource
	}

	realm := cfg.Realm
	if realm == "" {
		realm = "Restricted"
	}

	wwwAuthenticate := fmt.Sprintf("Basic realm=%q", realm)

	validate := cfg.ValidateFunc
	credentials := cfg.Credentials

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		username, password, ok := r.BasicAuth()
		if !ok {
			return s, unauthorized(wwwAuthenticate), nil
		}

		if validate != nil {
			if !validate(username, password) {
				return s, unauthorized(wwwAuthenticate), nil
			}
		} else {
			expectedPassword, exists := credentials[username]
			// Always perform the password comparison to prevent timing
			// leaks that reveal whether a username exists in the map.
			passwordMatch := constantTimeEqual(password, expectedPassword)
			if !exists || !passwordMatch {
				return s, unauthorized(wwwAuthenticate), nil
			}
		}

		state.Put(s, BasicAuthUser(username))

		return next(s, r)
	}), nil
}

// constantTimeEqual compares two strings in constant time by first hashing
// them with SHA-256. This prevents both value leaks and length-based timing
// leaks that raw ConstantTimeCompare would allow on different-length inputs.
func constantTimeEqual(a, b string) bool {
	aHash := sha256.Sum256([]byte(a))
	bHash := sha256.Sum256([]byte(b))

	return subtle.ConstantTimeCompare(aHash[:], bHash[:]) == 1
}

// unauthorized returns a 401 response with the WWW-Authenticate header and
// an empty body.
func unauthorized(wwwAuthenticate string) *mux.Response {
	resp := mux.NewResponse(http.StatusUnauthorized)
	resp.Header.Set("WWW-Authenticate", wwwAuthenticate)
	return resp
}
