// Package state provides the per-request value bag threaded through every
// pipeline and handler.
//
// A State holds at most one value per Go type. It is owned by exactly one
// party at a time: the router, a middleware, the handler, or a worker future.
// Ownership moves by passing the *State along and receiving it back; a State
// is never used from two goroutines at once.
//
//	state.Put(s, User{Name: "alice"})
//	u, ok := state.Borrow[User](s)
package state

import (
	"errors"
	"reflect"
	"sync/atomic"
)

// ErrDetached is the panic value raised when a State is accessed while it is
// handed off to another owner (for example a worker future).
var ErrDetached = errors.New("state: accessed while owned by another party")

// State is a type-keyed bag of request-scoped values.
type State struct {
	values   map[reflect.Type]any
	detached atomic.Bool
}

// New returns an empty State.
func New() *State {
	return &State{values: make(map[reflect.Type]any)}
}

// Put stores v, replacing any value of the same type.
func Put[T any](s *State, v T) {
	s.check()
	s.values[reflect.TypeFor[T]()] = v
}

// Borrow returns the value of type T and whether it was present.
func Borrow[T any](s *State) (T, bool) {
	s.check()
	v, ok := s.values[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// MustBorrow returns the value of type T and panics when it is absent.
// Use it for values a configured middleware guarantees to be present.
func MustBorrow[T any](s *State) T {
	v, ok := Borrow[T](s)
	if !ok {
		panic("state: no value of type " + reflect.TypeFor[T]().String())
	}
	return v
}

// Take removes the value of type T and returns it.
func Take[T any](s *State) (T, bool) {
	v, ok := Borrow[T](s)
	if ok {
		delete(s.values, reflect.TypeFor[T]())
	}
	return v, ok
}

// Has reports whether a value of type T is present.
func Has[T any](s *State) bool {
	return s.HasType(reflect.TypeFor[T]())
}

// HasType reports whether a value of the given type is present.
func (s *State) HasType(t reflect.Type) bool {
	s.check()
	_, ok := s.values[t]
	return ok
}

// Merge copies every value of from into s, replacing values of the same
// type.
func (s *State) Merge(from *State) {
	s.check()
	from.check()
	for t, v := range from.values {
		s.values[t] = v
	}
}

// Len returns the number of stored values.
func (s *State) Len() int {
	s.check()
	return len(s.values)
}

// Detach marks the State as handed off. Until Attach is called every access
// panics with ErrDetached. Detach panics if the State is already detached.
func (s *State) Detach() {
	if !s.detached.CompareAndSwap(false, true) {
		panic(ErrDetached)
	}
}

// Attach returns a detached State to its caller.
func (s *State) Attach() {
	s.detached.Store(false)
}

// Detached reports whether the State is currently handed off.
func (s *State) Detached() bool {
	return s.detached.Load()
}

func (s *State) check() {
	if s.detached.Load() {
		panic(ErrDetached)
	}
}
