package httpx

import (
	"net/http"
	"strings"
)

// BearerToken extracts the bearer token from the Authorization header.
//
// A malformed header (missing "Bearer " prefix, empty value, or embedded
// whitespace inside the token) is reported as "no token" rather than an
// error; the caller decides whether that is fatal for the route.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}

	raw := strings.TrimSpace(authz[len(prefix):])
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}
