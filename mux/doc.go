// Package mux implements a segment-tree router that dispatches requests
// through chains of pipelines to a terminal handler.
//
// The package follows routing semantics from:
//   - RFC 9110 (HTTP Semantics)
//   - RFC 3986 (URIs)
//
// Every request owns a *state.State. The router creates it, and each
// pipeline middleware and handler receives it and hands it back together
// with the response. Responses are values, so finalizers can still adjust
// them before the router writes them to the client.
//
// # Router
//
// Routers are built once and are immutable afterwards:
//
//	set := mux.NewPipelineSet()
//	api := set.Add(mux.NewPipeline("api").Add(auth, logging).Build())
//	pipelines := set.Finalize()
//
//	r, err := mux.BuildRouter(mux.Chain(api), pipelines, func(b *mux.RouterBuilder) {
//	    b.Get("/").ToFunc(index)
//	    b.Get("/hello/:name").ToFunc(hello)
//	    b.Scope("/api", func(b *mux.RouterBuilder) {
//	        b.Post("/submit").ToFunc(submit)
//	    })
//	})
//	http.ListenAndServe(":8080", r)
//
// # Path Patterns
//
// Patterns are split on '/'. Empty segments are ignored, so a trailing
// slash is not significant.
//
//	/users           literal segment
//	/users/:id       dynamic segment, captures exactly one segment
//	/files/*rest     glob segment, captures zero or more segments
//
// Matching prefers literal segments, then dynamic, then glob, and backtracks
// when a branch does not lead to a route. A glob first takes every remaining
// segment and gives them back one at a time until the rest of the pattern
// matches.
//
// # Pattern Macros
//
// Dynamic segments accept a constraint in braces, either a named macro or a
// regular expression:
//
//	/users/:id{uuid}
//	/articles/:page{int}
//	/posts/:slug{[a-z-]+}
//
// Available macros:
//
//	uuid     - RFC 4122 UUID (e.g. 550e8400-e29b-41d4-a716-446655440000)
//	int      - unsigned integer (e.g. 42)
//	float    - decimal number (e.g. 3.14, 42, .5)
//	slug     - URL-safe slug (e.g. my-post-title)
//	alpha    - alphabetic characters (e.g. hello)
//	alphanum - alphanumeric characters (e.g. abc123)
//	date     - ISO 8601 date (e.g. 2024-01-15)
//	hex      - hexadecimal string (e.g. deadBEEF)
//	domain   - domain name per RFC 1123 (e.g. example.com, sub.example.co.uk)
//
// Two routes may not declare different dynamic segments, or different
// constraints, at the same position.
//
// # Matchers
//
// Every route built with Get, Post, Request and friends carries a method
// matcher. More matchers can be added and are combined with And:
//
//	b.Get("/api").AddMatcher(mux.MatcherFunc(func(r *http.Request) bool {
//	    return r.Header.Get("X-Custom") != ""
//	}))
//
// HeaderMatcher, HeaderRegexpMatcher and QueryMatcher build the common
// cases. Routes at the same node are tried in registration order. When none
// accepts the request and the methods they allow do not include the request
// method, the router answers 405 with an Allow header; otherwise 404.
//
// # Extractors
//
// Path and query extractors run after matching and before any pipeline.
// PathParams and QueryParams decode into tagged structs and store the value
// in the State:
//
//	type addQuery struct {
//	    X int `query:"x"`
//	    Y int `query:"y"`
//	}
//
//	b.Get("/add").WithQueryStringExtractor(mux.QueryParams[addQuery]()).ToFunc(add)
//
// Extractors write into a State of their own, which is merged into the
// request State once both have succeeded. When extraction fails the router
// answers 400 Bad Request and no extracted value is kept. The
// *ExtractionError is stored in the State so finalizers registered for the
// target type can shape the response.
//
// # Pipelines
//
// A pipeline is a named list of middleware. Pipelines live in a
// PipelineSet, and routes refer to them through a PipelineChain of handles
// resolved when the router is built. Middleware run in chain order; a
// middleware that returns without calling next ends dispatch and its
// response is used.
//
// # Finalizers
//
// Finalizers adjust responses by status code or by the presence of a State
// value type. Route finalizers run before the router-wide one:
//
//	b.Finalizer().ForStatus(http.StatusNotFound, func(s *state.State, resp *mux.Response) {
//	    resp.Body = []byte("nothing here")
//	})
//
// # Delegation
//
// Delegate mounts a router under a prefix. The enclosing chain runs first,
// then the sub-router matches the remaining segments:
//
//	b.Delegate("/admin").ToRouter(adminRouter)
//
// # Walking Routes
//
// Walk visits every route, descending into delegated routers:
//
//	r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
//	    fmt.Println(route.Pattern(), route.Methods())
//	    return nil
//	})
//
// Return SkipRouter to skip the router mounted by a delegated route.
package mux
