package mux

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrInvalidPattern is returned for malformed route patterns.
	ErrInvalidPattern = errors.New("mux: invalid route pattern")

	// ErrAmbiguousSegment is returned when two routes declare different
	// dynamic or glob segments at the same tree position.
	ErrAmbiguousSegment = errors.New("mux: ambiguous dynamic segment")

	// ErrDelegationConflict is returned when a delegated route would share
	// its node, or any ancestor node, with other routes.
	ErrDelegationConflict = errors.New("mux: delegated route conflicts with existing routes")
)

type segmentKind uint8

const (
	segmentStatic segmentKind = iota
	segmentDynamic
	segmentGlob
)

// segment is one parsed element of a route pattern.
type segment struct {
	kind       segmentKind
	value      string // literal text, or capture name for dynamic and glob
	constraint varMatcher
}

func (s segment) String() string {
	switch s.kind {
	case segmentDynamic:
		if s.constraint != nil {
			return ":" + s.value + "{" + s.constraint.String() + "}"
		}
		return ":" + s.value
	case segmentGlob:
		return "*" + s.value
	}
	return s.value
}

// parsePattern splits a route pattern into segments. Empty segments are
// dropped, so "/a//b/" parses like "/a/b".
//
//	/users/:id          dynamic segment
//	/users/:id{int}     dynamic segment with a macro or regexp constraint
//	/files/*rest        glob segment
func parsePattern(pattern string) ([]segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidPattern, pattern)
	}

	var segs []segment
	names := map[string]bool{}

	for _, raw := range strings.Split(pattern, "/") {
		if raw == "" {
			continue
		}

		var seg segment
		switch raw[0] {
		case ':':
			name, constraint, err := parseDynamic(raw[1:])
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
			}
			seg = segment{kind: segmentDynamic, value: name, constraint: constraint}
		case '*':
			if raw[1:] == "" {
				return nil, fmt.Errorf("%w: %q: glob segment needs a name", ErrInvalidPattern, pattern)
			}
			seg = segment{kind: segmentGlob, value: raw[1:]}
		default:
			seg = segment{kind: segmentStatic, value: raw}
		}

		if seg.kind != segmentStatic {
			if names[seg.value] {
				return nil, fmt.Errorf("%w: %q: duplicated capture %q", ErrInvalidPattern, pattern, seg.value)
			}
			names[seg.value] = true
		}

		segs = append(segs, seg)
	}

	return segs, nil
}

func parseDynamic(s string) (string, varMatcher, error) {
	name, rest, hasConstraint := strings.Cut(s, "{")
	if name == "" {
		return "", nil, errors.New("dynamic segment needs a name")
	}
	if !hasConstraint {
		return name, nil, nil
	}

	expr, ok := strings.CutSuffix(rest, "}")
	if !ok || expr == "" {
		return "", nil, fmt.Errorf("unterminated constraint for %q", name)
	}

	pattern, matcher := expandMacro(expr)
	if matcher != nil {
		return name, matcher, nil
	}

	re, err := compileRegexp("^(?:" + pattern + ")$")
	if err != nil {
		return "", nil, err
	}

	return name, re, nil
}

// node is one level of the segment tree.
type node struct {
	kind       segmentKind
	value      string
	constraint varMatcher

	static  map[string]*node
	dynamic *node
	glob    *node

	// routes terminating here, in registration order.
	routes []*Route
}

func (n *node) routable() bool {
	return len(n.routes) > 0
}

func (n *node) delegating() bool {
	for _, r := range n.routes {
		if r.delegated {
			return true
		}
	}
	return false
}

func (n *node) hasChildren() bool {
	return len(n.static) > 0 || n.dynamic != nil || n.glob != nil
}

func (n *node) accepts(value string) bool {
	return n.constraint == nil || n.constraint.MatchString(value)
}

func sameConstraint(a, b varMatcher) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// child returns the child for seg, creating it when missing.
func (n *node) child(seg segment) (*node, error) {
	switch seg.kind {
	case segmentDynamic:
		if n.dynamic == nil {
			n.dynamic = &node{kind: segmentDynamic, value: seg.value, constraint: seg.constraint}
		} else if n.dynamic.value != seg.value || !sameConstraint(n.dynamic.constraint, seg.constraint) {
			return nil, fmt.Errorf("%w: %s conflicts with %s", ErrAmbiguousSegment, seg, segment{
				kind: segmentDynamic, value: n.dynamic.value, constraint: n.dynamic.constraint,
			})
		}
		return n.dynamic, nil

	case segmentGlob:
		if n.glob == nil {
			n.glob = &node{kind: segmentGlob, value: seg.value}
		} else if n.glob.value != seg.value {
			return nil, fmt.Errorf("%w: *%s conflicts with *%s", ErrAmbiguousSegment, seg.value, n.glob.value)
		}
		return n.glob, nil
	}

	if n.static == nil {
		n.static = make(map[string]*node)
	}
	c, ok := n.static[seg.value]
	if !ok {
		c = &node{kind: segmentStatic, value: seg.value}
		n.static[seg.value] = c
	}
	return c, nil
}

// tree resolves request paths to nodes. It is mutated only while the router
// is built and is read-only afterwards.
type tree struct {
	root *node
}

func newTree() *tree {
	return &tree{root: &node{}}
}

func (t *tree) insert(segs []segment, r *Route) error {
	n := t.root
	for _, seg := range segs {
		if n.delegating() {
			return fmt.Errorf("%w: %s is below a delegated route", ErrDelegationConflict, r.pattern)
		}

		var err error
		if n, err = n.child(seg); err != nil {
			return err
		}
	}

	if r.delegated && (n.routable() || n.hasChildren()) {
		return fmt.Errorf("%w: %s", ErrDelegationConflict, r.pattern)
	}
	if !r.delegated && n.delegating() {
		return fmt.Errorf("%w: %s is registered on a delegated node", ErrDelegationConflict, r.pattern)
	}

	n.routes = append(n.routes, r)
	r.node = n
	return nil
}

// capture is one named capture collected while walking the tree.
type capture struct {
	name   string
	values []string
}

// treeMatch is the result of a successful path walk.
type treeMatch struct {
	node      *node
	captures  []capture
	remaining []string
}

// splitPath breaks an escaped request path into decoded segments, dropping
// empty segments. Segments with invalid escapes are kept as is.
func splitPath(escaped string) []string {
	parts := strings.Split(escaped, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if d, err := url.PathUnescape(p); err == nil {
			p = d
		}
		segs = append(segs, p)
	}
	return segs
}

// match walks the tree for the given segments. The result depends only on
// the tree and the input.
func (t *tree) match(segs []string) (treeMatch, bool) {
	return t.root.walk(segs)
}

// walk tries children in the order literal, dynamic, glob and backtracks to
// the next branch when a subtree yields no routable node.
func (n *node) walk(segs []string) (treeMatch, bool) {
	if n.delegating() {
		return treeMatch{node: n, remaining: segs}, true
	}

	if len(segs) == 0 && n.routable() {
		return treeMatch{node: n}, true
	}

	if len(segs) > 0 {
		head, tail := segs[0], segs[1:]

		if c, ok := n.static[head]; ok {
			if m, ok := c.walk(tail); ok {
				return m, true
			}
		}

		if d := n.dynamic; d != nil && d.accepts(head) {
			if m, ok := d.walk(tail); ok {
				m.captures = append(m.captures, capture{name: d.value, values: []string{head}})
				return m, true
			}
		}
	}

	if n.glob != nil {
		return n.glob.consume(segs)
	}

	return treeMatch{}, false
}

// consume lets a glob node take the longest run of segments first and
// shortens it until the remainder matches.
func (n *node) consume(segs []string) (treeMatch, bool) {
	for k := len(segs); k >= 0; k-- {
		m, ok := n.walk(segs[k:])
		if !ok {
			continue
		}
		m.captures = append(m.captures, capture{name: n.value, values: append([]string{}, segs[:k]...)})
		return m, true
	}
	return treeMatch{}, false
}

// visit calls fn for every route in the tree. Children are visited in the
// order literal (sorted), dynamic, glob.
func (n *node) visit(fn func(*Route) error) error {
	for _, r := range n.routes {
		if err := fn(r); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(n.static))
	for k := range n.static {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := n.static[k].visit(fn); err != nil {
			return err
		}
	}
	if n.dynamic != nil {
		if err := n.dynamic.visit(fn); err != nil {
			return err
		}
	}
	if n.glob != nil {
		return n.glob.visit(fn)
	}
	return nil
}
