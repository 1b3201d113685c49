package muxhandlers

import (
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// RequestID is the request identifier stored in the State by
// RequestIDMiddleware.
type RequestID string

// RequestIDFrom returns the request ID stored in s by RequestIDMiddleware.
// Returns an empty string if no ID is present.
func RequestIDFrom(s *state.State) string {
	id, _ := state.Borrow[RequestID](s)
	return string(id)
}

// RequestIDConfig configures the Request ID middleware behaviour.
type RequestIDConfig struct {
	// HeaderName overrides the header used to propagate the request ID.
	// Defaults to "X-Request-ID" when empty.
	HeaderName string

	// GenerateFunc is an optional callback that returns a new unique ID.
	// Defaults to GenerateUUIDv4.
	GenerateFunc func(r *http.Request) string

	// TrustIncoming, when true, reuses an existing request ID from the
	// incoming request header instead of generating a new one.
	TrustIncoming bool
}

// RequestIDMiddleware returns a middleware that generates or propagates a
// request ID. The ID is stored in the State for downstream middleware and
// handlers and is echoed in the response header.
func RequestIDMiddleware(cfg RequestIDConfig) mux.Middleware {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-Request-ID"
	}

	generate := cfg.GenerateFunc
	if generate == nil {
		generate = GenerateUUIDv4
	}

	trustIncoming := cfg.TrustIncoming

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		id := ""
		if trustIncoming {
			id = r.Header.Get(headerName)
		}

		if id == "" {
			id = generate(r)
		}

		if id == "" {
			return next(s, r)
		}

		state.Put(s, RequestID(id))

		s, resp, err := next(s, r)
		if resp != nil {
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			resp.Header.Set(headerName, id)
		}
		return s, resp, err
	})
}

// GenerateUUIDv4 returns a new UUID v4 string.
//
// See https://www.rfc-editor.org/rfc/rfc9562#section-5.4
func GenerateUUIDv4(_ *http.Request) string {
	return uuid.New().String()
}

// GenerateUUIDv7 returns a new UUID v7 string. UUIDs are time-ordered:
// IDs generated later sort lexicographically after earlier ones.
//
// See https://www.rfc-editor.org/rfc/rfc9562#section-5.7
func GenerateUUIDv7(_ *http.Request) string {
	return uuid.Must(uuid.NewV7()).String()
}

var (
	ulidEntropy     = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyLock sync.Mutex
)

// GenerateULID returns a new ULID string. ULIDs are 26 characters,
// time-ordered, and monotonic within the same millisecond.
func GenerateULID(_ *http.Request) string {
	ulidEntropyLock.Lock()
	defer ulidEntropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
