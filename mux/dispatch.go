package mux

import (
	"errors"
	"net/http"

	"github.com/vitalvas/gantry/state"
)

// ErrNilResponse is returned when a handler returns neither a response nor
// an error.
var ErrNilResponse = errors.New("mux: handler returned a nil response")

// Handler produces the response for a request. It receives ownership of the
// State and must return it.
type Handler interface {
	Handle(s *state.State, req *http.Request) (*state.State, *Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(s *state.State, req *http.Request) (*state.State, *Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(s *state.State, req *http.Request) (*state.State, *Response, error) {
	return f(s, req)
}

// NewHandler creates a Handler for each request.
type NewHandler interface {
	NewHandler() (Handler, error)
}

// NewHandlerFunc adapts a function to the NewHandler interface.
type NewHandlerFunc func() (Handler, error)

// NewHandler implements NewHandler.
func (f NewHandlerFunc) NewHandler() (Handler, error) {
	return f()
}

// sharedHandler hands out the same Handler for every request.
type sharedHandler struct {
	h Handler
}

func (s sharedHandler) NewHandler() (Handler, error) {
	return s.h, nil
}

// Dispatcher runs a resolved pipeline chain followed by a handler.
type Dispatcher struct {
	newHandler NewHandler
	pipelines  []*Pipeline
}

// NewDispatcher binds newHandler to chain. The chain is resolved against set
// once, here; dispatch never consults the set again.
func NewDispatcher(newHandler NewHandler, chain PipelineChain, set *PipelineSet) (*Dispatcher, error) {
	if newHandler == nil {
		return nil, errors.New("mux: nil handler")
	}

	pipelines, err := set.Resolve(chain)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{newHandler: newHandler, pipelines: pipelines}, nil
}

// Pipelines returns the resolved pipelines in execution order.
func (d *Dispatcher) Pipelines() []*Pipeline {
	return append([]*Pipeline(nil), d.pipelines...)
}

// Dispatch runs every pipeline in chain order and then the handler. Each
// pipeline wraps the continuation of the one after it, so a pipeline that
// does not call next stops everything behind it. Errors are returned
// unchanged.
func (d *Dispatcher) Dispatch(s *state.State, req *http.Request) (*state.State, *Response, error) {
	next := Next(d.runHandler)
	for i := len(d.pipelines) - 1; i >= 0; i-- {
		p, inner := d.pipelines[i], next
		next = once(func(s *state.State, req *http.Request) (*state.State, *Response, error) {
			return p.Call(s, req, inner)
		})
	}

	s, resp, err := next(s, req)
	if err == nil && resp == nil {
		err = ErrNilResponse
	}
	return s, resp, err
}

func (d *Dispatcher) runHandler(s *state.State, req *http.Request) (*state.State, *Response, error) {
	h, err := d.newHandler.NewHandler()
	if err != nil {
		return s, nil, err
	}
	return h.Handle(s, req)
}
