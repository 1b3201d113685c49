package mux

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Matcher decides whether a route at a matched tree node accepts a request.
// Matchers are stateless and safe for concurrent use.
type Matcher interface {
	Match(req *http.Request) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(req *http.Request) bool

// Match implements Matcher.
func (f MatcherFunc) Match(req *http.Request) bool {
	return f(req)
}

// methodLister is implemented by matchers that restrict the request method.
// The router uses it to build the Allow header of 405 responses.
type methodLister interface {
	AllowedMethods() []string
}

// AllowedMethods returns the methods m accepts, or nil when m does not
// restrict the method.
func AllowedMethods(m Matcher) []string {
	if ml, ok := m.(methodLister); ok {
		return ml.AllowedMethods()
	}
	return nil
}

// methodMatcher matches the request method token (RFC 9110 Section 9)
// against a list of allowed methods.
type methodMatcher []string

// MethodMatcher returns a matcher accepting the given methods. A matcher
// accepting GET also accepts HEAD.
func MethodMatcher(methods ...string) Matcher {
	m := make(methodMatcher, 0, len(methods))
	for _, method := range methods {
		method = strings.ToUpper(method)
		if !matchInArray(m, method) {
			m = append(m, method)
		}
	}
	return m
}

func (m methodMatcher) Match(req *http.Request) bool {
	return methodAllowed(m, req.Method)
}

func (m methodMatcher) AllowedMethods() []string {
	return append([]string(nil), m...)
}

// anyMethod accepts every request. Delegated routes use it so the mounted
// router decides on the method.
type anyMethod struct{}

func (anyMethod) Match(*http.Request) bool {
	return true
}

// headerMatcher matches request headers against expected values.
// Header names are case-insensitive per RFC 7230 Section 3.2.
type headerMatcher map[string]string

// HeaderMatcher returns a matcher for header name/value pairs. An empty
// value only checks that the header is present. Names and values are
// validated per RFC 9110 Section 5.
func HeaderMatcher(pairs ...string) (Matcher, error) {
	m, err := mapFromPairsToString(pairs...)
	if err != nil {
		return nil, err
	}
	for k, v := range m {
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, fmt.Errorf("mux: invalid header name %q", k)
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return nil, fmt.Errorf("mux: invalid value for header %q", k)
		}
	}
	return headerMatcher(m), nil
}

func (m headerMatcher) Match(req *http.Request) bool {
	return matchMapWithString(map[string]string(m), map[string][]string(req.Header), true)
}

// headerRegexMatcher matches request headers against regexp patterns.
type headerRegexMatcher map[string]*regexp.Regexp

// HeaderRegexpMatcher returns a matcher for header name/pattern pairs.
func HeaderRegexpMatcher(pairs ...string) (Matcher, error) {
	m, err := mapFromPairsToRegex(pairs...)
	if err != nil {
		return nil, err
	}
	for k := range m {
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, fmt.Errorf("mux: invalid header name %q", k)
		}
	}
	return headerRegexMatcher(m), nil
}

func (m headerRegexMatcher) Match(req *http.Request) bool {
	return matchMapWithRegex(map[string]*regexp.Regexp(m), map[string][]string(req.Header), true)
}

// queryMatcher matches query parameters against expected values.
type queryMatcher map[string]string

// QueryMatcher returns a matcher for query key/value pairs. An empty value
// only checks that the key is present.
func QueryMatcher(pairs ...string) (Matcher, error) {
	m, err := mapFromPairsToString(pairs...)
	if err != nil {
		return nil, err
	}
	return queryMatcher(m), nil
}

func (m queryMatcher) Match(req *http.Request) bool {
	return matchMapWithString(map[string]string(m), ParseQuery(req.URL.RawQuery), false)
}

// andMatcher requires every component to match.
type andMatcher []Matcher

// And combines matchers with logical AND. Nil matchers are skipped.
func And(matchers ...Matcher) Matcher {
	var out andMatcher
	for _, m := range matchers {
		switch v := m.(type) {
		case nil:
		case andMatcher:
			out = append(out, v...)
		default:
			out = append(out, v)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m andMatcher) Match(req *http.Request) bool {
	for _, c := range m {
		if !c.Match(req) {
			return false
		}
	}
	return true
}

// AllowedMethods returns the intersection of the method sets of the
// components that restrict the method.
func (m andMatcher) AllowedMethods() []string {
	var allowed []string
	restricted := false
	for _, c := range m {
		ml, ok := c.(methodLister)
		if !ok {
			continue
		}
		methods := ml.AllowedMethods()
		if !restricted {
			allowed = methods
			restricted = true
			continue
		}
		kept := allowed[:0:0]
		for _, a := range allowed {
			if matchInArray(methods, a) {
				kept = append(kept, a)
			}
		}
		allowed = kept
	}
	return allowed
}
