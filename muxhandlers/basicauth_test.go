package muxhandlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestBasicAuth(t *testing.T) {
	t.Run("config error no auth source", func(t *testing.T) {
		_, err := BasicAuthMiddleware(BasicAuthConfig{})
		assert.ErrorIs(t, err, ErrNoAuthSource)
	})

	tests := []struct {
		name        string
		config      BasicAuthConfig
		authHeader  string
		wantCode    int
		wantWWWAuth string
	}{
		{
			name:       "valid credentials via ValidateFunc",
			config:     BasicAuthConfig{ValidateFunc: func(u, p string) bool { return u == "admin" && p == "secret" }},
			authHeader: basicAuthHeader("admin", "secret"),
			wantCode:   http.StatusOK,
		},
		{
			name:       "valid credentials via Credentials map",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: basicAuthHeader("admin", "secret"),
			wantCode:   http.StatusOK,
		},
		{
			name:       "invalid password",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: basicAuthHeader("admin", "wrong"),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "unknown username",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: basicAuthHeader("unknown", "secret"),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:     "missing Authorization header",
			config:   BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "malformed header not Basic",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: "Bearer some-token",
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "malformed base64",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: "Basic !!!invalid-base64!!!",
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "malformed credentials no colon",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte("nocolon")),
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "password with colons",
			config:     BasicAuthConfig{Credentials: map[string]string{"admin": "pass:with:colons"}},
			authHeader: basicAuthHeader("admin", "pass:with:colons"),
			wantCode:   http.StatusOK,
		},
		{
			name: "ValidateFunc takes priority over Credentials",
			config: BasicAuthConfig{
				ValidateFunc: func(u, p string) bool { return u == "func-user" && p == "func-pass" },
				Credentials:  map[string]string{"map-user": "map-pass"},
			},
			authHeader: basicAuthHeader("func-user", "func-pass"),
			wantCode:   http.StatusOK,
		},
		{
			name:        "custom realm",
			config:      BasicAuthConfig{Realm: "My App", Credentials: map[string]string{"admin": "secret"}},
			wantCode:    http.StatusUnauthorized,
			wantWWWAuth: `Basic realm="My App"`,
		},
		{
			name:        "default realm",
			config:      BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}},
			wantCode:    http.StatusUnauthorized,
			wantWWWAuth: `Basic realm="Restricted"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := BasicAuthMiddleware(tt.config)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := serve(newRouter(t, okHandler, mw), req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantWWWAuth != "" {
				assert.Equal(t, tt.wantWWWAuth, w.Header().Get("WWW-Authenticate"))
			}
			if tt.wantCode == http.StatusUnauthorized {
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
				body, err := io.ReadAll(w.Body)
				require.NoError(t, err)
				assert.Empty(t, body)
			}
		})
	}

	t.Run("stores the user in state", func(t *testing.T) {
		mw, err := BasicAuthMiddleware(BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}})
		require.NoError(t, err)

		var user BasicAuthUser
		r := newRouter(t, func(s *state.State, r *http.Request) (*state.State, *mux.Response, error) {
			user = state.MustBorrow[BasicAuthUser](s)
			return okHandler(s, r)
		}, mw)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", basicAuthHeader("admin", "secret"))
		serve(r, req)

		assert.Equal(t, BasicAuthUser("admin"), user)
	})

	t.Run("handler not reached on failure", func(t *testing.T) {
		mw, err := BasicAuthMiddleware(BasicAuthConfig{Credentials: map[string]string{"admin": "secret"}})
		require.NoError(t, err)

		var called bool
		r := newRouter(t, func(s *state.State, r *http.Request) (*state.State, *mux.Response, error) {
			called = true
			return okHandler(s, r)
		}, mw)

		serve(r, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.False(t, called)
	})
}

func BenchmarkBasicAuth(b *testing.B) {
	mw, err := BasicAuthMiddleware(BasicAuthConfig{
		Credentials: map[string]string{"admin": "secret"},
	})
	if err != nil {
		b.Fatal(err)
	}
	r := newRouter(b, okHandler, mw)

	b.Run("valid credentials", func(b *testing.B) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", basicAuthHeader("admin", "secret"))

		for b.Loop() {
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	})

	b.Run("invalid credentials", func(b *testing.B) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Authorization", basicAuthHeader("admin", "wrong"))

		for b.Loop() {
			r.ServeHTTP(httptest.NewRecorder(), req)
		}
	})
}
