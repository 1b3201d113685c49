package muxhandlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ErrNoAllowedTypes is returned when ContentTypeCheckConfig.AllowedTypes is
// empty.
var ErrNoAllowedTypes = errors.New("content type check: at least one allowed content type is required")

// ContentTypeCheckConfig configures the Content-Type Check middleware behaviour.
type ContentTypeCheckConfig struct {
	// AllowedTypes is the set of acceptable Content-Type values.
	// Matching is case-insensitive and ignores parameters
	// (e.g. "application/json" matches "application/json; charset=utf-8").
	// Required; at least one must be provided.
	AllowedTypes []string

	// Methods is the set of HTTP methods that require Content-Type
	// validation. When nil, defaults to POST, PUT, PATCH.
	Methods []string
}

// defaultCheckedMethods is the set of HTTP methods that require Content-Type
// validation when Methods is nil.
var defaultCheckedMethods = []string{
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
}

// ContentTypeCheckMiddleware returns a middleware that validates the
// Content-Type header on requests with matching methods. It short-circuits
// the pipeline with 415 Unsupported Media Type when the Content-Type is
// missing or does not match any of the allowed types.
//
// It returns ErrNoAllowedTypes if AllowedTypes is empty.
func ContentTypeCheckMiddleware(cfg ContentTypeCheckConfig) (mux.Middleware, error) {
	if len(cfg.AllowedTypes) == 0 {
		return nil, ErrNoAllowedTypes
	}

	methods := cfg.Methods
	if methods == nil {
		methods = defaultCheckedMethods
	}

	methodSet := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		methodSet[m] = struct{}{}
	}

	allowedSet := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowedSet[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		if _, check := methodSet[r.Method]; check && !allowedContentType(r.Header.Get("Content-Type"), allowedSet) {
			return s, mux.StatusResponse(http.StatusUnsupportedMediaType), nil
		}

		return next(s, r)
	}), nil
}

func allowedContentType(ct string, allowed map[string]struct{}) bool {
	if ct == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}

	_, ok := allowed[strings.ToLower(mediaType)]
	return ok
}
