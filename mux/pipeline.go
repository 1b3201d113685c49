package mux

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/vitalvas/gantry/state"
)

var (
	// ErrUnknownPipeline is returned when a chain references a handle that
	// does not belong to the pipeline set it is resolved against.
	ErrUnknownPipeline = errors.New("mux: pipeline handle does not belong to this pipeline set")

	// ErrContinuationReused is returned when a middleware calls its next
	// continuation more than once.
	ErrContinuationReused = errors.New("mux: continuation called more than once")
)

// Next continues dispatch with the rest of the chain. Middleware must call
// it at most once and pass on the State it received.
type Next func(s *state.State, req *http.Request) (*state.State, *Response, error)

// Middleware intercepts a request. It either calls next to continue, or
// returns a response without calling next to end dispatch early. In both
// cases it returns the State it owns.
type Middleware interface {
	Call(s *state.State, req *http.Request, next Next) (*state.State, *Response, error)
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(s *state.State, req *http.Request, next Next) (*state.State, *Response, error)

// Call implements Middleware.
func (f MiddlewareFunc) Call(s *state.State, req *http.Request, next Next) (*state.State, *Response, error) {
	return f(s, req, next)
}

// once guards a continuation against repeated calls.
func once(next Next) Next {
	var called atomic.Bool
	return func(s *state.State, req *http.Request) (*state.State, *Response, error) {
		if !called.CompareAndSwap(false, true) {
			return s, nil, ErrContinuationReused
		}
		return next(s, req)
	}
}

// Pipeline is a named, ordered list of middleware. It is immutable once built
// and shared by every route whose chain references it, so its middleware
// must be safe for concurrent use.
type Pipeline struct {
	name        string
	middlewares []Middleware
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Len returns the number of middleware in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Call runs the pipeline's middleware in order, then next.
func (p *Pipeline) Call(s *state.State, req *http.Request, next Next) (*state.State, *Response, error) {
	return p.call(0, s, req, next)
}

func (p *Pipeline) call(i int, s *state.State, req *http.Request, next Next) (*state.State, *Response, error) {
	if i == len(p.middlewares) {
		return next(s, req)
	}
	return p.middlewares[i].Call(s, req, once(func(s *state.State, req *http.Request) (*state.State, *Response, error) {
		return p.call(i+1, s, req, next)
	}))
}

// PipelineBuilder assembles a Pipeline.
type PipelineBuilder struct {
	name        string
	middlewares []Middleware
}

// NewPipeline starts a pipeline with the given name.
func NewPipeline(name string) *PipelineBuilder {
	return &PipelineBuilder{name: name}
}

// Add appends middleware. Middleware run in the order they are added.
func (b *PipelineBuilder) Add(mw ...Middleware) *PipelineBuilder {
	for _, m := range mw {
		if m == nil {
			panic("mux: nil middleware passed to Add")
		}
	}
	b.middlewares = append(b.middlewares, mw...)
	return b
}

// Build returns the pipeline. The builder may be reused; later additions do
// not affect pipelines already built.
func (b *PipelineBuilder) Build() *Pipeline {
	return &Pipeline{
		name:        b.name,
		middlewares: append([]Middleware(nil), b.middlewares...),
	}
}

// PipelineHandle refers to a pipeline inside the set that issued it.
type PipelineHandle struct {
	set   uint64
	index int
}

var pipelineSetIDs atomic.Uint64

// PipelineSetBuilder collects pipelines before they are frozen into a
// PipelineSet.
type PipelineSetBuilder struct {
	id        uint64
	pipelines []*Pipeline
	finalized bool
}

// NewPipelineSet starts an empty pipeline set.
func NewPipelineSet() *PipelineSetBuilder {
	return &PipelineSetBuilder{id: pipelineSetIDs.Add(1)}
}

// Add registers p and returns its handle. Add panics after Finalize.
func (b *PipelineSetBuilder) Add(p *Pipeline) PipelineHandle {
	if b.finalized {
		panic("mux: pipeline set already finalized")
	}
	if p == nil {
		panic("mux: nil pipeline passed to Add")
	}
	b.pipelines = append(b.pipelines, p)
	return PipelineHandle{set: b.id, index: len(b.pipelines) - 1}
}

// Finalize freezes the set. The builder cannot be used afterwards.
func (b *PipelineSetBuilder) Finalize() *PipelineSet {
	b.finalized = true
	return &PipelineSet{id: b.id, pipelines: b.pipelines}
}

// PipelineSet is the immutable registry of pipelines shared by a router.
type PipelineSet struct {
	id        uint64
	pipelines []*Pipeline
}

// Len returns the number of pipelines in the set.
func (s *PipelineSet) Len() int {
	return len(s.pipelines)
}

// Resolve returns the pipelines referenced by chain, in chain order.
func (s *PipelineSet) Resolve(chain PipelineChain) ([]*Pipeline, error) {
	out := make([]*Pipeline, 0, len(chain))
	for i, h := range chain {
		if s == nil || h.set != s.id || h.index < 0 || h.index >= len(s.pipelines) {
			return nil, fmt.Errorf("%w: chain position %d", ErrUnknownPipeline, i)
		}
		out = append(out, s.pipelines[h.index])
	}
	return out, nil
}

// PipelineChain is the ordered list of pipelines a route runs through. It is
// plain data; Append and Prepend return new chains.
type PipelineChain []PipelineHandle

// Chain builds a chain from handles.
func Chain(handles ...PipelineHandle) PipelineChain {
	return append(PipelineChain(nil), handles...)
}

// Append returns a chain with handles added after c.
func (c PipelineChain) Append(handles ...PipelineHandle) PipelineChain {
	out := make(PipelineChain, 0, len(c)+len(handles))
	out = append(out, c...)
	return append(out, handles...)
}

// Prepend returns a chain with handles added before c.
func (c PipelineChain) Prepend(handles ...PipelineHandle) PipelineChain {
	out := make(PipelineChain, 0, len(c)+len(handles))
	out = append(out, handles...)
	return append(out, c...)
}
