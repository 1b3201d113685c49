package mux

import (
	"errors"

	"github.com/vitalvas/gantry/state"
)

// ErrMethodMismatch is returned when the path matches but no route at the
// node accepts the request method. Triggers 405 Method Not Allowed
// per RFC 9110 Section 15.5.6.
var ErrMethodMismatch = errors.New("mux: method is not allowed")

// ErrNotFound is returned when no route match is found. Triggers 404 Not
// Found per RFC 9110 Section 15.5.5.
var ErrNotFound = errors.New("mux: no matching route was found")

// SkipRouter is used as a return value from WalkFunc to indicate that the
// router that walk is about to descend into should be skipped.
var SkipRouter = errors.New("skip this router") //nolint:revive,staticcheck // mirrors filepath.SkipDir

// RouteMatch stores information about a routing attempt.
type RouteMatch struct {
	// Route is the matched route, if any.
	Route *Route

	// Captures holds the dynamic and glob segment values.
	Captures Captures

	// Remaining holds the segments left for a delegated route.
	Remaining []string

	// Allowed is the sorted set of methods accepted at the matched node.
	// It is set together with ErrMethodMismatch.
	Allowed []string

	// MatchErr is ErrNotFound or ErrMethodMismatch when Match fails.
	MatchErr error
}

// routeContext is stored in the request State once a route has been selected.
type routeContext struct {
	route    *Route
	captures Captures
}

// CurrentRoute returns the route selected for the request owning s.
func CurrentRoute(s *state.State) *Route {
	if rc, ok := state.Borrow[*routeContext](s); ok {
		return rc.route
	}
	return nil
}

// Vars returns the captures of the selected route.
func Vars(s *state.State) Captures {
	if rc, ok := state.Borrow[*routeContext](s); ok {
		return rc.captures
	}
	return nil
}

// SetVars stores captures in s as if a route had matched them. This is
// intended for testing handlers in isolation.
func SetVars(s *state.State, captures Captures) {
	var route *Route
	if rc, ok := state.Borrow[*routeContext](s); ok {
		route = rc.route
	}
	state.Put(s, &routeContext{route: route, captures: captures})
}

// delegatedPath carries the unmatched segments to a mounted router.
type delegatedPath []string

// WalkFunc is the type of the function called for each route visited by
// Walk. It receives the route, the router owning it and the delegated
// routes that led to that router.
type WalkFunc func(route *Route, router *Router, ancestors []*Route) error
