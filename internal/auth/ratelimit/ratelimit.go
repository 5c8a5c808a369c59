package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/auth/cache"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// Endpoint classes. Each class carries its own abuse budget; handlers declare
// a class instead of a limit so new endpoints never touch limiter internals.
const (
	ClassLogin    = "login"
	ClassRegister = "register"
	ClassRefresh  = "refresh"
	ClassGeneral  = "general"
)

// Rule defines the fixed-window budget for one endpoint class.
type Rule struct {
	// Requests is the number of requests admitted per window.
	Requests int
	// Window is the fixed counting window.
	Window time.Duration
}

// Rules maps endpoint class to its budget.
type Rules map[string]Rule

// DefaultRules returns the standard per-class budgets. Each class can be
// overridden via environment variables (useful for testing):
// RATELIMIT_{CLASS}_REQUESTS and RATELIMIT_{CLASS}_WINDOW_SEC.
func DefaultRules() Rules {
	return Rules{
		ClassLogin:    ParseRuleFromEnv("LOGIN", Rule{Requests: 5, Window: time.Minute}),
		ClassRegister: ParseRuleFromEnv("REGISTER", Rule{Requests: 3, Window: time.Minute}),
		ClassRefresh:  ParseRuleFromEnv("REFRESH", Rule{Requests: 30, Window: time.Minute}),
		ClassGeneral:  ParseRuleFromEnv("GENERAL", Rule{Requests: 60, Window: time.Minute}),
	}
}

// ParseRuleFromEnv reads a rule override from environment variables following
// the pattern RATELIMIT_{prefix}_REQUESTS / RATELIMIT_{prefix}_WINDOW_SEC.
func ParseRuleFromEnv(prefix string, def Rule) Rule {
	rule := def

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			rule.Requests = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			rule.Window = time.Duration(windowSec) * time.Second
		}
	}

	return rule
}

// Limiter is a fixed-window rate limiter backed by the shared cache, so the
// budget holds across all service instances. Counter failures fail open: an
// outage of the shared store degrades to "no rate limiting" rather than
// taking the auth surface down with it.
type Limiter struct {
	store cache.Store
	rules Rules
}

func New(store cache.Store, rules Rules) *Limiter {
	return &Limiter{store: store, rules: rules}
}

func counterKey(class, clientAddr string) string {
	return "rate:" + class + ":" + clientAddr
}

// Allow reports whether a request from clientAddr may proceed under the
// class budget. It must run before any expensive work (credential lookup,
// password hashing); the limiter is the first gate.
func (l *Limiter) Allow(ctx context.Context, clientAddr, class string) bool {
	log := slogx.FromContext(ctx)

	rule, ok := l.rules[class]
	if !ok {
		log.Warn("rate limit: unknown endpoint class, allowing request", "class", class)
		return true
	}

	count, err := l.store.IncrementCounter(ctx, counterKey(class, clientAddr), rule.Window)
	if err != nil {
		// Fail open: admission-control failure must not become a denial
		// of service against our own users.
		log.Error("rate limit: counter store unreachable, allowing request",
			"class", class,
			"client", clientAddr,
			"err", err,
		)
		return true
	}

	return count <= int64(rule.Requests)
}

// RemainingAttempts is a best-effort read of how many requests are left in
// the current window, for error messaging. It is optimistic on store failure.
func (l *Limiter) RemainingAttempts(ctx context.Context, clientAddr, class string) int {
	rule, ok := l.rules[class]
	if !ok {
		return 0
	}

	count, err := l.store.CounterValue(ctx, counterKey(class, clientAddr))
	if err != nil {
		return rule.Requests
	}

	remaining := rule.Requests - int(count)
	return max(remaining, 0)
}

// Middleware gates requests on the class budget, keyed by the client address
// the proxy resolver placed in the request context.
func (l *Limiter) Middleware(class string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			addr := httpx.ClientIP(ctx)
			if addr == "" {
				// Resolver middleware not in the chain; fall back to the peer
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					addr = host
				} else {
					addr = r.RemoteAddr
				}
			}

			if !l.Allow(ctx, addr, class) {
				rule := l.rules[class]
				retryAfter := max(int(rule.Window.Seconds()), 1)

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rule.Requests))
				w.Header().Set("X-RateLimit-Window", rule.Window.String())

				log.Warn("rate limit exceeded",
					"class", class,
					"client", addr,
					"endpoint", r.URL.Path,
				)

				httpx.WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
