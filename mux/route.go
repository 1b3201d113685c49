package mux

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vitalvas/gantry/state"
)

// ErrNoHandler is returned by BuildRouter when a route was started but never
// given a handler.
var ErrNoHandler = errors.New("mux: route has no handler")

// Route binds a tree node to a matcher, extractors, a dispatcher and
// route-level finalizer extenders. Routes are created by RouteBuilder and
// are immutable once the router is built.
type Route struct {
	pattern        string
	matcher        Matcher
	dispatcher     *Dispatcher
	pathExtractor  PathExtractor
	queryExtractor QueryStringExtractor
	finalizer      *ResponseFinalizer

	// delegated routes hand the remaining path to sub.
	delegated bool
	sub       *Router

	node *node
}

// Pattern returns the pattern the route was registered with, including the
// prefixes of enclosing scopes.
func (r *Route) Pattern() string {
	return r.pattern
}

// Methods returns the methods the route accepts, or nil when the route does
// not restrict the method.
func (r *Route) Methods() []string {
	return AllowedMethods(r.matcher)
}

// Delegated reports whether the route mounts a sub-router.
func (r *Route) Delegated() bool {
	return r.delegated
}

// Subrouter returns the router mounted by a delegated route.
func (r *Route) Subrouter() *Router {
	return r.sub
}

// Dispatcher returns the route's dispatcher.
func (r *Route) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// nodeMethods returns the sorted union of methods accepted by every route
// registered on the same node as r.
func (r *Route) nodeMethods() []string {
	if r.node == nil {
		return r.Methods()
	}
	var methods []string
	for _, sibling := range r.node.routes {
		methods = mergeMethods(methods, sibling.Methods())
	}
	return withHead(methods)
}

// withHead adds HEAD to a method set holding GET.
func withHead(methods []string) []string {
	if matchInArray(methods, http.MethodGet) {
		return mergeMethods(methods, []string{http.MethodHead})
	}
	return methods
}

// RouteBuilder configures a single route. The route is registered when one
// of the To methods is called.
type RouteBuilder struct {
	build   *buildState
	pattern string
	chain   PipelineChain

	matchers       []Matcher
	pathExtractor  PathExtractor
	queryExtractor QueryStringExtractor
	finalizer      *FinalizerBuilder
	done           bool
}

func newRouteBuilder(bs *buildState, pattern string, chain PipelineChain, m Matcher) *RouteBuilder {
	rb := &RouteBuilder{
		build:          bs,
		pattern:        pattern,
		chain:          chain,
		matchers:       []Matcher{m},
		pathExtractor:  NoopPathExtractor{},
		queryExtractor: NoopQueryStringExtractor{},
	}
	bs.pending = append(bs.pending, rb)
	return rb
}

// WithPathExtractor sets the extractor run on the route's captures.
func (b *RouteBuilder) WithPathExtractor(e PathExtractor) *RouteBuilder {
	if e == nil {
		e = NoopPathExtractor{}
	}
	b.pathExtractor = e
	return b
}

// WithQueryStringExtractor sets the extractor run on the request query.
func (b *RouteBuilder) WithQueryStringExtractor(e QueryStringExtractor) *RouteBuilder {
	if e == nil {
		e = NoopQueryStringExtractor{}
	}
	b.queryExtractor = e
	return b
}

// AddMatcher adds a matcher the request must satisfy in addition to the
// method.
func (b *RouteBuilder) AddMatcher(m Matcher) *RouteBuilder {
	if m != nil {
		b.matchers = append(b.matchers, m)
	}
	return b
}

// WithFinalizer registers route-level response extenders. They run before
// the router's global finalizer.
func (b *RouteBuilder) WithFinalizer(fn func(f *FinalizerBuilder)) *RouteBuilder {
	if b.finalizer == nil {
		b.finalizer = NewFinalizer()
	}
	fn(b.finalizer)
	return b
}

// To registers the route with a handler shared by every request.
func (b *RouteBuilder) To(h Handler) {
	if h == nil {
		b.build.fail(fmt.Errorf("mux: nil handler for %s", b.pattern))
		return
	}
	b.ToNewHandler(sharedHandler{h: h})
}

// ToFunc registers the route with a handler function.
func (b *RouteBuilder) ToFunc(f func(s *state.State, req *http.Request) (*state.State, *Response, error)) {
	b.To(HandlerFunc(f))
}

// ToNewHandler registers the route with a factory invoked once per request.
func (b *RouteBuilder) ToNewHandler(nh NewHandler) {
	b.register(nh, nil)
}

func (b *RouteBuilder) register(nh NewHandler, sub *Router) {
	if b.done {
		b.build.fail(fmt.Errorf("mux: route %s already has a handler", b.pattern))
		return
	}
	b.done = true

	segs, err := parsePattern(b.pattern)
	if err != nil {
		b.build.fail(err)
		return
	}

	d, err := NewDispatcher(nh, b.chain, b.build.set)
	if err != nil {
		b.build.fail(fmt.Errorf("%s: %w", b.pattern, err))
		return
	}

	route := &Route{
		pattern:        b.pattern,
		matcher:        And(b.matchers...),
		dispatcher:     d,
		pathExtractor:  b.pathExtractor,
		queryExtractor: b.queryExtractor,
		delegated:      sub != nil,
		sub:            sub,
	}
	if b.finalizer != nil {
		route.finalizer = b.finalizer.Finalize()
	}

	if err := b.build.router.tree.insert(segs, route); err != nil {
		b.build.fail(err)
	}
}

// DelegateBuilder mounts a sub-router under a prefix.
type DelegateBuilder struct {
	route *RouteBuilder
}

// AddMatcher adds a matcher the request must satisfy before it is handed to
// the sub-router.
func (d *DelegateBuilder) AddMatcher(m Matcher) *DelegateBuilder {
	d.route.AddMatcher(m)
	return d
}

// ToRouter mounts sub. The enclosing pipeline chain runs first, then sub
// matches the segments left after the prefix and runs its own chain.
func (d *DelegateBuilder) ToRouter(sub *Router) {
	if sub == nil {
		d.route.build.fail(fmt.Errorf("mux: nil router delegated at %s", d.route.pattern))
		d.route.done = true
		return
	}
	d.route.register(sharedHandler{h: sub}, sub)
}

// joinPattern prefixes pattern with the scope prefix.
func joinPattern(prefix, pattern string) string {
	if prefix == "" {
		return pattern
	}
	if pattern == "" || pattern == "/" {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/") + pattern
}
