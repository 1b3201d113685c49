package muxhandlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/vitalvas/gantry/mux"
	"github.com/vitalvas/gantry/state"
)

// ErrInvalidProxy is returned when a TrustedProxies entry is neither a valid
// IP address nor a valid CIDR range.
var ErrInvalidProxy = errors.New("proxy headers: invalid proxy entry")

// DefaultTrustedProxies is the set of private and loopback ranges used when
// ProxyHeadersConfig.TrustedProxies is empty.
//
// Included ranges:
//   - 127.0.0.0/8    IPv4 loopback (RFC 1122)
//   - 10.0.0.0/8     Class A private (RFC 1918)
//   - 172.16.0.0/12  Class B private (RFC 1918)
//   - 192.168.0.0/16 Class C private (RFC 1918)
//   - 100.64.0.0/10  CGNAT shared address space (RFC 6598)
//   - ::1/128        IPv6 loopback (RFC 4291)
//   - fc00::/7       IPv6 unique local (RFC 4193)
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
}

// ProxyHeadersConfig configures the ProxyHeaders middleware behaviour.
type ProxyHeadersConfig struct {
	// TrustedProxies is a list of IP addresses and CIDR ranges.
	// Forwarding headers are only honoured when r.RemoteAddr is in this set.
	// When empty, DefaultTrustedProxies (private/loopback ranges) is used.
	// Examples: "10.0.0.1", "192.168.0.0/16", "::1", "fd00::/8"
	TrustedProxies []string

	// EnableForwarded enables parsing of the RFC 7239 Forwarded header.
	// When enabled, the Forwarded header is used as a fallback after the
	// de-facto X-Forwarded-* and X-Real-IP headers.
	//
	// See https://www.rfc-editor.org/rfc/rfc7239
	EnableForwarded bool
}

// ClientInfo describes the originating client as seen through trusted
// proxies. ProxyHeadersMiddleware stores it in the State for every request.
type ClientInfo struct {
	// IP is the client address without port.
	IP netip.Addr

	// Scheme is "http" or "https".
	Scheme string

	// Host is the host the client asked for.
	Host string

	// By is the proxy interface identifier from a Forwarded by= directive.
	By string

	// Forwarded reports whether any of the fields came from proxy headers.
	Forwarded bool
}

// ClientInfoFrom returns the ClientInfo stored in s by
// ProxyHeadersMiddleware.
func ClientInfoFrom(s *state.State) (ClientInfo, bool) {
	return state.Borrow[ClientInfo](s)
}

// ProxyHeadersMiddleware returns a middleware that resolves the originating
// client from reverse proxy headers when the request comes from a trusted
// proxy. The result is stored in the State as ClientInfo and applied to the
// request passed downstream.
//
// Supported headers (checked in priority order):
//   - r.RemoteAddr: X-Forwarded-For > X-Real-IP [> Forwarded for=]
//   - r.URL.Scheme: X-Forwarded-Proto > X-Forwarded-Scheme [> Forwarded proto=]
//   - r.Host:       X-Forwarded-Host [> Forwarded host=]
//   - ClientInfo.By: [Forwarded by=]
//
// Bracketed entries require EnableForwarded (RFC 7239).
//
// When TrustedProxies is empty, DefaultTrustedProxies (private RFC 1918/4193
// and loopback ranges) is used.
//
// It returns an error if the configuration contains unparseable IP/CIDR entries.
func ProxyHeadersMiddleware(cfg ProxyHeadersConfig) (mux.Middleware, error) {
	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = DefaultTrustedProxies
	}

	trusted, err := parseTrustedProxies(proxies)
	if err != nil {
		return nil, err
	}

	enableFwd := cfg.EnableForwarded

	return mux.MiddlewareFunc(func(s *state.State, r *http.Request, next mux.Next) (*state.State, *mux.Response, error) {
		peer := peerAddr(r.RemoteAddr)

		info := ClientInfo{IP: peer, Scheme: requestScheme(r), Host: r.Host}
		if !peer.IsValid() || !isTrusted(peer, trusted) {
			state.Put(s, info)
			return next(s, r)
		}

		var fwd forwardedParams
		if enableFwd {
			fwd = parseForwarded(r.Header.Get("Forwarded"))
		}

		forwardedIP := ""
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			forwardedIP = parseXForwardedFor(xff)
		} else if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			forwardedIP = realIP
		} else {
			forwardedIP = fwd.forIP
		}
		if ip, err := netip.ParseAddr(forwardedIP); err == nil {
			info.IP = ip
			info.Forwarded = true
		}

		if scheme := proxyScheme(r); scheme != "" {
			info.Scheme = scheme
			info.Forwarded = true
		} else if fwd.proto != "" {
			info.Scheme = fwd.proto
			info.Forwarded = true
		}

		if host := r.Header.Get("X-Forwarded-Host"); host != "" {
			info.Host = host
			info.Forwarded = true
		} else if fwd.host != "" {
			info.Host = fwd.host
			info.Forwarded = true
		}

		info.By = fwd.by

		state.Put(s, info)

		if info.Forwarded {
			r = applyClientInfo(r, info)
		}

		return next(s, r)
	}), nil
}

// applyClientInfo returns a shallow copy of r reflecting info.
func applyClientInfo(r *http.Request, info ClientInfo) *http.Request {
	out := *r
	out.RemoteAddr = info.IP.String()
	out.Host = info.Host

	u := *r.URL
	u.Scheme = info.Scheme
	out.URL = &u

	return &out
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// proxyScheme returns the normalized scheme from X-Forwarded-Proto or
// X-Forwarded-Scheme. Returns empty string if neither header is present or the
// value is not http/https.
func proxyScheme(r *http.Request) string {
	for _, header := range []string{"X-Forwarded-Proto", "X-Forwarded-Scheme"} {
		if val := r.Header.Get(header); val != "" {
			normalized := strings.ToLower(strings.TrimSpace(val))
			if normalized == "http" || normalized == "https" {
				return normalized
			}

			return ""
		}
	}

	return ""
}

// parseTrustedProxies parses a list of IP addresses and CIDR ranges into
// prefixes. A bare address becomes a single-address prefix. It returns an
// error wrapping ErrInvalidProxy for any entry that is neither.
func parseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))

	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
			}

			out = append(out, p.Masked())
			continue
		}

		ip, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}

		ip = ip.Unmap()
		out = append(out, netip.PrefixFrom(ip, ip.BitLen()))
	}

	return out, nil
}

// peerAddr parses r.RemoteAddr, which may or may not carry a port.
func peerAddr(remoteAddr string) netip.Addr {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap()
	}

	ip, err := netip.ParseAddr(remoteAddr)
	if err != nil {
		return netip.Addr{}
	}

	return ip.Unmap()
}

func isTrusted(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}

	return false
}

// parseXForwardedFor returns the leftmost valid IP from a comma-separated
// X-Forwarded-For header value. Returns an empty string if no valid IP is
// found.
func parseXForwardedFor(xff string) string {
	for part := range strings.SplitSeq(xff, ",") {
		candidate := strings.TrimSpace(part)
		if ip := net.ParseIP(candidate); ip != nil {
			return candidate
		}
	}

	return ""
}

// forwardedParams holds the extracted directives from the first element of an
// RFC 7239 Forwarded header value.
type forwardedParams struct {
	forIP string // validated IP from "for=" directive
	by    string // raw value from "by=" directive (proxy interface identifier)
	proto string // normalized scheme from "proto=" directive (http or https)
	host  string // raw value from "host=" directive
}

// parseForwarded extracts for=, proto=, and host= from the first element of
// an RFC 7239 Forwarded header. Multiple elements are comma-separated; only the
// first is used (the client-facing proxy).
//
// See https://www.rfc-editor.org/rfc/rfc7239
func parseForwarded(header string) forwardedParams {
	if header == "" {
		return forwardedParams{}
	}

	// Take only the first element (before the first comma).
	if idx := strings.IndexByte(header, ','); idx != -1 {
		header = header[:idx]
	}

	var result forwardedParams

	for param := range strings.SplitSeq(header, ";") {
		param = strings.TrimSpace(param)

		eqIdx := strings.IndexByte(param, '=')
		if eqIdx == -1 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(param[:eqIdx]))
		val := strings.TrimSpace(param[eqIdx+1:])

		switch key {
		case "for":
			result.forIP = parseForwardedIP(val)
		case "proto":
			val = strings.ToLower(strings.Trim(val, `"`))
			if val == "http" || val == "https" {
				result.proto = val
			}
		case "by":
			val = strings.Trim(val, `"`)
			if val != "" {
				result.by = val
			}
		case "host":
			val = strings.Trim(val, `"`)
			if val != "" {
				result.host = val
			}
		}
	}

	return result
}

// parseForwardedIP extracts and validates an IP from a Forwarded for= value.
// IPv6 addresses are quoted and may include brackets and ports, e.g.:
//
//	for=192.0.2.60
//	for="[2001:db8::1]"
//	for="[2001:db8::1]:4711"
//	for="_hidden"
func parseForwardedIP(val string) string {
	val = strings.Trim(val, `"`)

	// Handle [host]:port format (e.g. [2001:db8::1]:4711).
	if host, _, err := net.SplitHostPort(val); err == nil {
		val = host
	} else {
		// Handle [host] without port (e.g. [2001:db8::1]).
		val = strings.TrimPrefix(val, "[")
		val = strings.TrimSuffix(val, "]")
	}

	if ip := net.ParseIP(val); ip != nil {
		return val
	}

	return ""
}
