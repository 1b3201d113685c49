package mux

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vitalvas/gantry/state"
)

// Router matches requests against a segment tree and dispatches them through
// the matched route's pipeline chain.
//
// It implements http.Handler, so it can be registered to serve requests:
//
//	r, err := mux.BuildRouter(chain, set, func(b *mux.RouterBuilder) {
//		b.Get("/").ToFunc(index)
//	})
//	http.ListenAndServe(":8080", r)
//
// It also implements Handler, which is how a router is mounted under another
// one with Delegate.
type Router struct {
	// NotFoundHandler produces the response when no route matches.
	// If nil, a plain 404 Not Found is returned (RFC 9110 Section 15.5.5).
	NotFoundHandler Handler

	// MethodNotAllowedHandler produces the response when the path matches
	// but the method does not. If nil, a plain 405 is returned. The Allow
	// header is set on the response afterwards unless the handler set it
	// (RFC 9110 Section 15.5.6).
	MethodNotAllowedHandler Handler

	tree      *tree
	finalizer *ResponseFinalizer
	logger    *slog.Logger
	skipClean bool
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for handler errors. The default is
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSkipClean disables removal of dot segments (RFC 3986 Section 5.2.4)
// before matching.
func WithSkipClean(skip bool) Option {
	return func(r *Router) {
		r.skipClean = skip
	}
}

// buildState is shared by every builder of one BuildRouter call.
type buildState struct {
	router    *Router
	set       *PipelineSet
	finalizer *FinalizerBuilder
	errs      []error
	pending   []*RouteBuilder
}

func (bs *buildState) fail(err error) {
	bs.errs = append(bs.errs, err)
}

// RouterBuilder registers routes. Scopes and chain overrides create nested
// builders that share the same router.
type RouterBuilder struct {
	build  *buildState
	prefix string
	chain  PipelineChain
}

// BuildRouter builds a router. Routes registered through b use chain unless
// a nested WithPipelineChain block overrides it; every chain is resolved
// against set here. Construction errors are collected and returned together.
func BuildRouter(chain PipelineChain, set *PipelineSet, fn func(b *RouterBuilder), opts ...Option) (*Router, error) {
	r := &Router{
		tree:   newTree(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if set == nil {
		set = NewPipelineSet().Finalize()
	}

	bs := &buildState{
		router:    r,
		set:       set,
		finalizer: NewFinalizer(),
	}
	fn(&RouterBuilder{build: bs, chain: chain})

	for _, rb := range bs.pending {
		if !rb.done {
			bs.fail(fmt.Errorf("%w: %s", ErrNoHandler, rb.pattern))
		}
	}
	if err := errors.Join(bs.errs...); err != nil {
		return nil, err
	}

	r.finalizer = bs.finalizer.Finalize()
	return r, nil
}

// Request starts a route accepting the given methods.
func (b *RouterBuilder) Request(methods []string, pattern string) *RouteBuilder {
	return newRouteBuilder(b.build, joinPattern(b.prefix, pattern), b.chain, MethodMatcher(methods...))
}

// Get starts a route accepting GET and HEAD.
func (b *RouterBuilder) Get(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodGet}, pattern)
}

// Head starts a route accepting HEAD.
func (b *RouterBuilder) Head(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodHead}, pattern)
}

// Post starts a route accepting POST.
func (b *RouterBuilder) Post(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodPost}, pattern)
}

// Put starts a route accepting PUT.
func (b *RouterBuilder) Put(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodPut}, pattern)
}

// Patch starts a route accepting PATCH.
func (b *RouterBuilder) Patch(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodPatch}, pattern)
}

// Delete starts a route accepting DELETE.
func (b *RouterBuilder) Delete(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodDelete}, pattern)
}

// Options starts a route accepting OPTIONS.
func (b *RouterBuilder) Options(pattern string) *RouteBuilder {
	return b.Request([]string{http.MethodOptions}, pattern)
}

// Scope registers the routes of fn under prefix. The scope keeps the
// enclosing pipeline chain.
func (b *RouterBuilder) Scope(prefix string, fn func(b *RouterBuilder)) {
	if !strings.HasPrefix(prefix, "/") {
		b.build.fail(fmt.Errorf("%w: scope %q must start with '/'", ErrInvalidPattern, prefix))
		return
	}
	fn(&RouterBuilder{build: b.build, prefix: joinPattern(b.prefix, prefix), chain: b.chain})
}

// WithPipelineChain registers the routes of fn with chain instead of the
// enclosing one.
func (b *RouterBuilder) WithPipelineChain(chain PipelineChain, fn func(b *RouterBuilder)) {
	fn(&RouterBuilder{build: b.build, prefix: b.prefix, chain: chain})
}

// Delegate starts mounting a sub-router under prefix.
func (b *RouterBuilder) Delegate(prefix string) *DelegateBuilder {
	return &DelegateBuilder{route: newRouteBuilder(b.build, joinPattern(b.prefix, prefix), b.chain, anyMethod{})}
}

// Finalizer returns the router-wide finalizer. Its extenders run on every
// response after the route-level ones.
func (b *RouterBuilder) Finalizer() *FinalizerBuilder {
	return b.build.finalizer
}

// ServeHTTP creates the request State, dispatches the request and writes
// the response. Errors returned by pipelines or handlers are logged and
// answered with 500 Internal Server Error.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s, resp, err := r.Handle(state.New(), req)
	if err != nil {
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Any("error", err),
		}
		if s != nil && !s.Detached() {
			if route := CurrentRoute(s); route != nil {
				attrs = append(attrs, slog.String("route", route.pattern))
			}
		}
		r.logger.ErrorContext(req.Context(), "request failed", attrs...)

		resp = StatusResponse(http.StatusInternalServerError)
		if s != nil && !s.Detached() {
			resp = r.finalizer.Finalize(s, resp)
		}
	}

	resp.Write(w, req)
}

// Handle implements Handler. A router mounted with Delegate matches the
// segments left by the enclosing router instead of the request path.
func (r *Router) Handle(s *state.State, req *http.Request) (*state.State, *Response, error) {
	segs, ok := state.Take[delegatedPath](s)
	if !ok {
		segs = r.requestSegments(req)
	}

	var match RouteMatch
	if !r.match(req, segs, &match) {
		return r.handleMiss(s, req, &match)
	}

	return r.dispatch(s, req, &match)
}

// Match attempts to match req against the router's routes. On failure
// match.MatchErr is ErrNotFound or ErrMethodMismatch, the latter with
// match.Allowed set.
func (r *Router) Match(req *http.Request, match *RouteMatch) bool {
	return r.match(req, r.requestSegments(req), match)
}

func (r *Router) requestSegments(req *http.Request) []string {
	path := requestURIPath(req.URL)
	if !r.skipClean {
		path = cleanPath(path)
	}
	return splitPath(path)
}

func (r *Router) match(req *http.Request, segs []string, match *RouteMatch) bool {
	tm, ok := r.tree.match(segs)
	if !ok {
		match.MatchErr = ErrNotFound
		return false
	}

	var allowed []string
	for _, route := range tm.node.routes {
		if route.matcher.Match(req) {
			match.Route = route
			match.Captures = makeCaptures(tm.captures)
			match.Remaining = tm.remaining
			match.Allowed = nil
			match.MatchErr = nil
			return true
		}
		allowed = mergeMethods(allowed, AllowedMethods(route.matcher))
	}

	if len(allowed) > 0 && !methodAllowed(allowed, req.Method) {
		match.Allowed = withHead(allowed)
		match.MatchErr = ErrMethodMismatch
		return false
	}

	match.MatchErr = ErrNotFound
	return false
}

func makeCaptures(cs []capture) Captures {
	if len(cs) == 0 {
		return Captures{}
	}
	out := make(Captures, len(cs))
	for _, c := range cs {
		out[c.name] = c.values
	}
	return out
}

func (r *Router) handleMiss(s *state.State, req *http.Request, match *RouteMatch) (*state.State, *Response, error) {
	h := r.NotFoundHandler
	if match.MatchErr == ErrMethodMismatch {
		h = r.MethodNotAllowedHandler
	}

	var resp *Response
	if h == nil {
		status := http.StatusNotFound
		if match.MatchErr == ErrMethodMismatch {
			status = http.StatusMethodNotAllowed
		}
		resp = StatusResponse(status)
	} else {
		var err error
		if s, resp, err = h.Handle(s, req); err != nil {
			return s, nil, err
		}
		if resp == nil {
			return s, nil, ErrNilResponse
		}
	}

	if match.MatchErr == ErrMethodMismatch {
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		if resp.Header.Get("Allow") == "" {
			resp.Header.Set("Allow", strings.Join(match.Allowed, ", "))
		}
	}

	return s, r.finalizer.Finalize(s, resp), nil
}

func (r *Router) dispatch(s *state.State, req *http.Request, match *RouteMatch) (*state.State, *Response, error) {
	route := match.Route
	state.Put(s, &routeContext{route: route, captures: match.Captures})
	if route.delegated {
		state.Put(s, delegatedPath(match.Remaining))
	}

	// Extracted values reach s only when both extractors succeed.
	extracted := state.New()
	if err := route.pathExtractor.ExtractPath(extracted, match.Captures); err != nil {
		return s, r.badRequest(s, route, &ExtractionError{
			Source: SourcePath,
			Type:   extractorType(route.pathExtractor),
			Err:    err,
		}), nil
	}

	if err := route.queryExtractor.ExtractQuery(extracted, ParseQuery(req.URL.RawQuery)); err != nil {
		return s, r.badRequest(s, route, &ExtractionError{
			Source: SourceQuery,
			Type:   extractorType(route.queryExtractor),
			Err:    err,
		}), nil
	}
	s.Merge(extracted)

	s, resp, err := route.dispatcher.Dispatch(s, req)
	if err != nil {
		return s, nil, err
	}

	resp = route.finalizer.Finalize(s, resp)
	return s, r.finalizer.Finalize(s, resp), nil
}

// badRequest answers a failed extraction. The error is left in the State so
// finalizers registered for the extractor's type can shape the response.
func (r *Router) badRequest(s *state.State, route *Route, ee *ExtractionError) *Response {
	state.Put(s, ee)
	r.logger.Debug("request extraction failed",
		slog.String("route", route.pattern),
		slog.String("source", string(ee.Source)),
		slog.Any("error", ee.Err),
	)

	resp := StatusResponse(http.StatusBadRequest)
	resp = route.finalizer.Finalize(s, resp)
	return r.finalizer.Finalize(s, resp)
}

// Walk calls fn for every route, descending into delegated routers. Routes
// are visited in tree order: literal segments sorted, then dynamic, then
// glob. Returning SkipRouter from fn for a delegated route skips its
// sub-router.
func (r *Router) Walk(fn WalkFunc) error {
	return r.walk(fn, nil)
}

func (r *Router) walk(fn WalkFunc, ancestors []*Route) error {
	return r.tree.root.visit(func(route *Route) error {
		err := fn(route, r, ancestors)
		if errors.Is(err, SkipRouter) {
			return nil
		}
		if err != nil {
			return err
		}
		if route.sub != nil {
			return route.sub.walk(fn, append(ancestors[:len(ancestors):len(ancestors)], route))
		}
		return nil
	})
}
