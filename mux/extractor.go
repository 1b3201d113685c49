package mux

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/vitalvas/gantry/binding"
	"github.com/vitalvas/gantry/state"
)

// Captures maps capture names to the decoded segment values they matched.
// Dynamic segments hold one value; glob segments hold zero or more.
type Captures map[string][]string

// Get returns the first value for name, or an empty string.
func (c Captures) Get(name string) string {
	if v := c[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// All returns every value for name.
func (c Captures) All(name string) []string {
	return c[name]
}

// QueryMapping maps query keys to their decoded values in request order.
type QueryMapping map[string][]string

// Get returns the first value for key, or an empty string.
func (q QueryMapping) Get(key string) string {
	if v := q[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// ParseQuery splits a raw query string on '&' and decodes keys and values
// as application/x-www-form-urlencoded. Pieces with invalid escapes keep
// their raw text instead of failing the whole query.
func ParseQuery(raw string) QueryMapping {
	q := QueryMapping{}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k, v = unescapeQuery(k), unescapeQuery(v)
		q[k] = append(q[k], v)
	}
	return q
}

func unescapeQuery(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

// PathExtractor turns captured segments into typed State values. The State
// passed to ExtractPath holds only extracted values.
type PathExtractor interface {
	ExtractPath(s *state.State, captures Captures) error
}

// QueryStringExtractor turns the parsed query into typed State values.
type QueryStringExtractor interface {
	ExtractQuery(s *state.State, query QueryMapping) error
}

// PathExtractorFunc adapts a function to the PathExtractor interface.
type PathExtractorFunc func(s *state.State, captures Captures) error

// ExtractPath implements PathExtractor.
func (f PathExtractorFunc) ExtractPath(s *state.State, captures Captures) error {
	return f(s, captures)
}

// QueryStringExtractorFunc adapts a function to the QueryStringExtractor interface.
type QueryStringExtractorFunc func(s *state.State, query QueryMapping) error

// ExtractQuery implements QueryStringExtractor.
func (f QueryStringExtractorFunc) ExtractQuery(s *state.State, query QueryMapping) error {
	return f(s, query)
}

// NoopPathExtractor is the default for routes without path parameters.
type NoopPathExtractor struct{}

// ExtractPath implements PathExtractor.
func (NoopPathExtractor) ExtractPath(*state.State, Captures) error { return nil }

// NoopQueryStringExtractor is the default for routes without query parameters.
type NoopQueryStringExtractor struct{}

// ExtractQuery implements QueryStringExtractor.
func (NoopQueryStringExtractor) ExtractQuery(*state.State, QueryMapping) error { return nil }

// targetTyped is implemented by extractors that decode into a known type.
// The type keys the finalizer extenders applied on extraction failure.
type targetTyped interface {
	TargetType() reflect.Type
}

type structExtractor[T any] struct{}

func (structExtractor[T]) TargetType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (structExtractor[T]) decode(s *state.State, values map[string][]string, tag string) error {
	var v T
	if err := binding.DecodeAndValidate(values, &v, tag); err != nil {
		return err
	}
	state.Put(s, v)
	return nil
}

type pathParams[T any] struct {
	structExtractor[T]
}

func (p pathParams[T]) ExtractPath(s *state.State, captures Captures) error {
	return p.decode(s, captures, binding.TagPath)
}

type queryParams[T any] struct {
	structExtractor[T]
}

func (q queryParams[T]) ExtractQuery(s *state.State, query QueryMapping) error {
	return q.decode(s, query, binding.TagQuery)
}

// PathParams returns an extractor that decodes captures into a T struct
// using `path` tags, validates it with `validate` tags and stores it in the
// State.
func PathParams[T any]() PathExtractor {
	return pathParams[T]{}
}

// QueryParams returns an extractor that decodes the query into a T struct
// using `query` tags, validates it with `validate` tags and stores it in the
// State.
func QueryParams[T any]() QueryStringExtractor {
	return queryParams[T]{}
}

// ExtractionSource names the request part an extractor read.
type ExtractionSource string

// Extraction sources.
const (
	SourcePath  ExtractionSource = "path"
	SourceQuery ExtractionSource = "query"
)

// ExtractionError reports a failed extractor. The router stores it in the
// State before finalizing the 400 response.
type ExtractionError struct {
	Source ExtractionSource
	// Type is the extractor's target type, or the extractor's own type when
	// it does not declare one.
	Type reflect.Type
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("mux: %s extraction into %s failed: %v", e.Source, e.Type, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractorType(ex any) reflect.Type {
	if tt, ok := ex.(targetTyped); ok {
		return tt.TargetType()
	}
	return reflect.TypeOf(ex)
}
