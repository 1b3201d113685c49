package mux

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
)

// cleanPath returns the canonical path for p, eliminating . and .. elements
// per RFC 3986 Section 5.2.4 (remove dot segments).
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	np := path.Clean(p)
	// path.Clean removes trailing slash except for root;
	// put the trailing slash back if necessary.
	if p[len(p)-1] == '/' && np != "/" {
		np += "/"
	}
	return np
}

// checkPairs returns an error if the list of key/value pairs has odd length.
func checkPairs(pairs ...string) (int, error) {
	if len(pairs)%2 != 0 {
		return 0, fmt.Errorf("mux: number of parameters must be multiple of 2, got %v", pairs)
	}
	return len(pairs) / 2, nil
}

// mapFromPairsToString converts variadic string parameters to a string map.
func mapFromPairsToString(pairs ...string) (map[string]string, error) {
	length, err := checkPairs(pairs...)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, length)
	for i := 0; i < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m, nil
}

// mapFromPairsToRegex converts variadic string parameters to a map of
// compiled regular expressions.
func mapFromPairsToRegex(pairs ...string) (map[string]*regexp.Regexp, error) {
	length, err := checkPairs(pairs...)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*regexp.Regexp, length)
	for i := 0; i < len(pairs); i += 2 {
		regex, err := compileRegexp(pairs[i+1])
		if err != nil {
			return nil, err
		}
		m[pairs[i]] = regex
	}
	return m, nil
}

// matchInArray returns true if the given string value is in the array.
func matchInArray(arr []string, value string) bool {
	for _, v := range arr {
		if v == value {
			return true
		}
	}
	return false
}

// methodAllowed reports whether method is in allowed. HEAD is allowed
// wherever GET is, per RFC 9110 Section 9.3.2.
func methodAllowed(allowed []string, method string) bool {
	if matchInArray(allowed, method) {
		return true
	}
	return method == http.MethodHead && matchInArray(allowed, http.MethodGet)
}

// matchMapWithString returns true if the given key/value pairs exist in a
// given map. Empty expected values only check for key presence. When
// canonicalKey is true, keys are normalized per RFC 7230 Section 3.2.
func matchMapWithString(toCheck map[string]string, toMatch map[string][]string, canonicalKey bool) bool {
	for k, v := range toCheck {
		if canonicalKey {
			k = http.CanonicalHeaderKey(k)
		}
		values, keyExists := toMatch[k]
		if !keyExists {
			return false
		}
		if v != "" && !matchInArray(values, v) {
			return false
		}
	}
	return true
}

// matchMapWithRegex returns true if the given key/regexp pairs match a
// given map. When canonicalKey is true, keys are normalized per
// RFC 7230 Section 3.2 (header field names are case-insensitive).
func matchMapWithRegex(toCheck map[string]*regexp.Regexp, toMatch map[string][]string, canonicalKey bool) bool {
	for k, v := range toCheck {
		if canonicalKey {
			k = http.CanonicalHeaderKey(k)
		}
		values, keyExists := toMatch[k]
		if !keyExists {
			return false
		}
		if !matchAnyRegexp(v, values) {
			return false
		}
	}
	return true
}

// matchAnyRegexp returns true if the regexp matches any of the given values.
func matchAnyRegexp(re *regexp.Regexp, values []string) bool {
	for _, v := range values {
		if re.MatchString(v) {
			return true
		}
	}
	return false
}

// mergeMethods appends the methods of src missing from dst and keeps the
// result sorted, as RFC 9110 Section 10.2.1 recommends for Allow.
func mergeMethods(dst, src []string) []string {
	for _, m := range src {
		if !matchInArray(dst, m) {
			dst = append(dst, m)
		}
	}
	sort.Strings(dst)
	return dst
}

// requestURIPath returns the percent-encoded path from the request URI
// per RFC 3986 Section 2.1. Falls back to the decoded Path if RawPath
// is empty.
func requestURIPath(u *url.URL) string {
	if u.RawPath != "" {
		return u.RawPath
	}
	return u.Path
}
