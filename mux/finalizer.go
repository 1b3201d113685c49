package mux

import (
	"reflect"

	"github.com/vitalvas/gantry/state"
)

// ResponseExtender adjusts a response after the handler produced it.
type ResponseExtender func(s *state.State, resp *Response)

type extenderEntry struct {
	status int
	typ    reflect.Type
	ext    ResponseExtender
}

// FinalizerBuilder collects response extenders.
type FinalizerBuilder struct {
	entries []extenderEntry
}

// NewFinalizer starts an empty finalizer.
func NewFinalizer() *FinalizerBuilder {
	return &FinalizerBuilder{}
}

// ForStatus registers ext for responses with the given status code.
func (b *FinalizerBuilder) ForStatus(status int, ext ResponseExtender) *FinalizerBuilder {
	b.entries = append(b.entries, extenderEntry{status: status, ext: ext})
	return b
}

// ForType registers ext for requests whose State holds a value of type t,
// or whose extraction into t failed.
func (b *FinalizerBuilder) ForType(t reflect.Type, ext ResponseExtender) *FinalizerBuilder {
	b.entries = append(b.entries, extenderEntry{typ: t, ext: ext})
	return b
}

// RegisterForType registers ext for type T. See FinalizerBuilder.ForType.
func RegisterForType[T any](b *FinalizerBuilder, ext ResponseExtender) *FinalizerBuilder {
	return b.ForType(reflect.TypeFor[T](), ext)
}

// Finalize freezes the registered extenders.
func (b *FinalizerBuilder) Finalize() *ResponseFinalizer {
	return &ResponseFinalizer{entries: append([]extenderEntry(nil), b.entries...)}
}

// ResponseFinalizer applies extenders to finished responses.
type ResponseFinalizer struct {
	entries []extenderEntry
}

// Len returns the number of registered extenders.
func (f *ResponseFinalizer) Len() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}

// Finalize applies, in registration order, every extender whose status
// equals resp.Status and every extender whose type is present in s.
// A nil finalizer returns resp unchanged, as does a State that is still
// detached by a worker job.
func (f *ResponseFinalizer) Finalize(s *state.State, resp *Response) *Response {
	if f == nil || resp == nil || s == nil || s.Detached() {
		return resp
	}

	var failed reflect.Type
	if ee, ok := state.Borrow[*ExtractionError](s); ok {
		failed = ee.Type
	}

	for _, e := range f.entries {
		if e.typ != nil {
			if e.typ == failed || s.HasType(e.typ) {
				e.ext(s, resp)
			}
			continue
		}
		if e.status == resp.Status {
			e.ext(s, resp)
		}
	}

	return resp
}
