package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// UnknownAddr is the sentinel returned when not even the direct peer address
// is usable. It still produces a valid rate-limit key, so an unparseable peer
// shares one bucket instead of bypassing limiting.
const UnknownAddr = "unknown"

// ProxyResolver determines the real client address behind reverse proxies.
//
// Forwarded headers (X-Forwarded-For, X-Real-IP) are only honoured when the
// direct peer is in the configured trust set. An empty set trusts nothing,
// so out of the box a forged X-Forwarded-For never changes the result.
type ProxyResolver struct {
	trusted []*net.IPNet
}

// NewProxyResolver parses a comma-separated list of IPs and CIDR ranges into
// a resolver. A malformed entry is a configuration error and should abort
// startup. The empty string yields a resolver that trusts no proxies.
func NewProxyResolver(list string) (*ProxyResolver, error) {
	r := &ProxyResolver{}

	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("httpx: invalid trusted proxy range %q: %w", entry, err)
			}
			r.trusted = append(r.trusted, ipnet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("httpx: invalid trusted proxy address %q", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		r.trusted = append(r.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}

	return r, nil
}

// Trusts reports whether the given peer IP is in the trusted proxy set.
func (r *ProxyResolver) Trusts(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for a connection. It never fails: when
// the peer is untrusted the raw peer address is returned regardless of header
// content, and UnknownAddr is returned only if the peer address itself is
// unusable.
func (r *ProxyResolver) Resolve(remoteAddr, forwardedFor, realIP string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.TrimSpace(remoteAddr)
	}
	if host == "" {
		return UnknownAddr
	}

	peer := net.ParseIP(host)
	if !r.Trusts(peer) {
		return host
	}

	// Trusted peer: prefer the left-most X-Forwarded-For entry, which by
	// convention is the originating client.
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}

	return host
}

// Middleware resolves the client address once per request and stores it in
// the request context for downstream consumers (rate limiting, logging).
func (r *ProxyResolver) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			addr := r.Resolve(
				req.RemoteAddr,
				req.Header.Get("X-Forwarded-For"),
				req.Header.Get("X-Real-IP"),
			)
			ctx := context.WithValue(req.Context(), CtxKeyClientIP, addr)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
