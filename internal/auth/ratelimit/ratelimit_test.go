package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	redisdriver "github.com/aussiebroadwan/tollgate/internal/auth/cache/drivers/redis"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

func newTestLimiter(t *testing.T, rules Rules) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisdriver.NewStore(redisdriver.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = store.Close() })
	return New(store, rules), mr
}

func TestAllow_ExactBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Rules{ClassLogin: {Requests: 5, Window: time.Minute}})
	ctx := context.Background()

	// Exactly limit requests admitted, limit+1 rejected
	for i := range 5 {
		require.True(t, l.Allow(ctx, "1.2.3.4", ClassLogin), "request %d should be admitted", i+1)
	}
	require.False(t, l.Allow(ctx, "1.2.3.4", ClassLogin))

	// A different address has its own budget
	require.True(t, l.Allow(ctx, "5.6.7.8", ClassLogin))
}

func TestAllow_WindowReset(t *testing.T) {
	l, mr := newTestLimiter(t, Rules{ClassLogin: {Requests: 2, Window: time.Minute}})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "1.2.3.4", ClassLogin))
	require.True(t, l.Allow(ctx, "1.2.3.4", ClassLogin))
	require.False(t, l.Allow(ctx, "1.2.3.4", ClassLogin))

	mr.FastForward(61 * time.Second)

	require.True(t, l.Allow(ctx, "1.2.3.4", ClassLogin))
}

func TestAllow_ClassesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Rules{
		ClassLogin:    {Requests: 1, Window: time.Minute},
		ClassRegister: {Requests: 1, Window: time.Minute},
	})
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "1.2.3.4", ClassLogin))
	require.False(t, l.Allow(ctx, "1.2.3.4", ClassLogin))

	// Same address, different class, separate counter
	require.True(t, l.Allow(ctx, "1.2.3.4", ClassRegister))
}

func TestAllow_FailsOpenOnStoreOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisdriver.NewStore(redisdriver.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = store.Close() })
	l := New(store, Rules{ClassLogin: {Requests: 1, Window: time.Minute}})

	mr.Close()

	// Store down: admit rather than reject
	require.True(t, l.Allow(context.Background(), "1.2.3.4", ClassLogin))
}

func TestRemainingAttempts(t *testing.T) {
	l, _ := newTestLimiter(t, Rules{ClassLogin: {Requests: 5, Window: time.Minute}})
	ctx := context.Background()

	require.Equal(t, 5, l.RemainingAttempts(ctx, "1.2.3.4", ClassLogin))

	l.Allow(ctx, "1.2.3.4", ClassLogin)
	l.Allow(ctx, "1.2.3.4", ClassLogin)
	require.Equal(t, 3, l.RemainingAttempts(ctx, "1.2.3.4", ClassLogin))

	for range 10 {
		l.Allow(ctx, "1.2.3.4", ClassLogin)
	}
	require.Equal(t, 0, l.RemainingAttempts(ctx, "1.2.3.4", ClassLogin))
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, Rules{ClassLogin: {Requests: 2, Window: time.Minute}})

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := httpx.Chain(ok, l.Middleware(ClassLogin))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req = req.WithContext(context.WithValue(req.Context(), httpx.CtxKeyClientIP, ip))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("1.2.3.4").Code)
	require.Equal(t, http.StatusOK, do("1.2.3.4").Code)

	rec := do("1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	// Other clients unaffected
	require.Equal(t, http.StatusOK, do("9.9.9.9").Code)
}

func TestParseRuleFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_LOGIN_REQUESTS", "50")
	t.Setenv("RATELIMIT_LOGIN_WINDOW_SEC", "10")

	rule := ParseRuleFromEnv("LOGIN", Rule{Requests: 5, Window: time.Minute})
	require.Equal(t, 50, rule.Requests)
	require.Equal(t, 10*time.Second, rule.Window)

	// Garbage values keep the defaults
	t.Setenv("RATELIMIT_LOGIN_REQUESTS", "nope")
	t.Setenv("RATELIMIT_LOGIN_WINDOW_SEC", "-3")
	rule = ParseRuleFromEnv("LOGIN", Rule{Requests: 5, Window: time.Minute})
	require.Equal(t, 5, rule.Requests)
	require.Equal(t, time.Minute, rule.Window)
}
