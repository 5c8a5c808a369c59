package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	redisdriver "github.com/aussiebroadwan/tollgate/internal/auth/cache/drivers/redis"
	"github.com/aussiebroadwan/tollgate/internal/auth/domain"
	"github.com/aussiebroadwan/tollgate/internal/auth/ratelimit"
	"github.com/aussiebroadwan/tollgate/internal/auth/service"
	"github.com/aussiebroadwan/tollgate/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/tokenx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testRouter struct {
	router *Router
	redis  *miniredis.Miniredis
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations())
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	cacheStore := redisdriver.NewStore(redisdriver.Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cacheStore.Close() })

	codec, err := tokenx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "tollgate-test")
	require.NoError(t, err)

	auth := &service.AuthService{
		Codec:      codec,
		Store:      db,
		Cache:      cacheStore,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	// Empty trust set: forwarding headers are never believed
	resolver, err := httpx.NewProxyResolver("")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter(auth, ratelimit.New(cacheStore, ratelimit.DefaultRules()),
		resolver, db, cacheStore, "test", logger)
	r.ApplyRoutes()

	return &testRouter{router: r, redis: mr}
}

func (tr *testRouter) do(t *testing.T, method, path, remoteAddr string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	tr.router.ServeHTTP(rec, req)
	return rec
}

func (tr *testRouter) register(t *testing.T, email, password string) RegisterResponse {
	t.Helper()

	rec := tr.do(t, http.MethodPost, "/v1/auth/register", "10.0.0.1:40000",
		map[string]string{"email": email, "name": "Test User", "password": password}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterEndpoint(t *testing.T) {
	tr := newTestRouter(t)

	t.Run("creates an account with a token pair", func(t *testing.T) {
		resp := tr.register(t, "alice@example.com", "Str0ngPass!")
		require.NotEmpty(t, resp.User.ID)
		require.Equal(t, "alice@example.com", resp.User.Email)
		require.Equal(t, "user", resp.User.Role)
		require.NotEmpty(t, resp.Tokens.AccessToken)
		require.NotEmpty(t, resp.Tokens.RefreshToken)
	})

	t.Run("duplicate email gets 409", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/register", "10.0.0.1:40000",
			map[string]string{"email": "alice@example.com", "password": "Str0ngPass!"}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields get 400", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/register", "10.0.0.2:40000",
			map[string]string{"email": "bob@example.com"}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	tr := newTestRouter(t)
	tr.register(t, "alice@example.com", "Str0ngPass!")

	t.Run("correct credentials get a pair", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.0.0.1:40000",
			map[string]string{"email": "alice@example.com", "password": "Str0ngPass!"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var pair domain.TokenPair
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
		require.Equal(t, "Bearer", pair.TokenType)
		require.EqualValues(t, 15*60, pair.ExpiresIn)
	})

	t.Run("wrong password gets 401", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.0.0.1:40000",
			map[string]string{"email": "alice@example.com", "password": "wrong"}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// TestLoginRateLimit exercises the abuse budget on the login class: attempts
// one through five are admitted (and fail authentication), the sixth is
// rejected at the gate with a retry hint.
func TestLoginRateLimit(t *testing.T) {
	tr := newTestRouter(t)
	tr.register(t, "alice@example.com", "Str0ngPass!")

	body := map[string]string{"email": "alice@example.com", "password": "wrong"}

	for i := 1; i <= 5; i++ {
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.1.1.1:40000", body, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}

	rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.1.1.1:40000", body, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))

	t.Run("other addresses are unaffected", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.1.1.2:40000", body, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("next window admits again", func(t *testing.T) {
		tr.redis.FastForward(61 * time.Second)
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.1.1.1:40000", body, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// TestSpoofedForwardedFor verifies that with no trusted proxies configured,
// the rate limiter keys on the connection peer, so varying X-Forwarded-For
// does not buy an attacker a fresh budget.
func TestSpoofedForwardedFor(t *testing.T) {
	tr := newTestRouter(t)
	tr.register(t, "alice@example.com", "Str0ngPass!")

	body := map[string]string{"email": "alice@example.com", "password": "wrong"}

	for i := 1; i <= 5; i++ {
		rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.2.2.2:40000", body,
			map[string]string{"X-Forwarded-For": fmt.Sprintf("1.2.3.%d", i)})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}

	rec := tr.do(t, http.MethodPost, "/v1/auth/login", "10.2.2.2:40000", body,
		map[string]string{"X-Forwarded-For": "1.2.3.99"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	tr := newTestRouter(t)
	resp := tr.register(t, "alice@example.com", "Str0ngPass!")

	t.Run("rotation then replay", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/refresh", "10.0.0.1:40000",
			map[string]string{"refresh_token": resp.Tokens.RefreshToken}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var pairB domain.TokenPair
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairB))
		require.NotEqual(t, resp.Tokens.RefreshToken, pairB.RefreshToken)

		// The redeemed token is dead
		rec = tr.do(t, http.MethodPost, "/v1/auth/refresh", "10.0.0.1:40000",
			map[string]string{"refresh_token": resp.Tokens.RefreshToken}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token gets 400", func(t *testing.T) {
		rec := tr.do(t, http.MethodPost, "/v1/auth/refresh", "10.0.0.1:40000",
			map[string]string{}, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	tr := newTestRouter(t)
	resp := tr.register(t, "alice@example.com", "Str0ngPass!")

	t.Run("always 200", func(t *testing.T) {
		for _, header := range []map[string]string{
			nil,
			{"Authorization": "garbage"},
			{"Authorization": "Bearer not-a-token"},
			{"Authorization": "Bearer " + resp.Tokens.AccessToken},
		} {
			rec := tr.do(t, http.MethodPost, "/v1/auth/logout", "10.0.0.1:40000", nil, header)
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("token is revoked afterwards", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/v1/auth/validate", "10.0.0.1:40000", nil,
			map[string]string{"Authorization": "Bearer " + resp.Tokens.AccessToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidateEndpoint(t *testing.T) {
	tr := newTestRouter(t)
	resp := tr.register(t, "alice@example.com", "Str0ngPass!")

	t.Run("valid token", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/v1/auth/validate", "10.0.0.1:40000", nil,
			map[string]string{"Authorization": "Bearer " + resp.Tokens.AccessToken})
		require.Equal(t, http.StatusOK, rec.Code)

		var v ValidateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
		require.Equal(t, resp.User.ID, v.UserID)
		require.Equal(t, "user", v.Role)
		require.Greater(t, v.ExpiresAt, time.Now().Unix())
	})

	t.Run("missing token gets a bearer challenge", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/v1/auth/validate", "10.0.0.1:40000", nil, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	})

	t.Run("refresh token is rejected", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/v1/auth/validate", "10.0.0.1:40000", nil,
			map[string]string{"Authorization": "Bearer " + resp.Tokens.RefreshToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	tr := newTestRouter(t)

	t.Run("livez", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/livez", "10.0.0.1:40000", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz reports ok", func(t *testing.T) {
		rec := tr.do(t, http.MethodGet, "/readyz", "10.0.0.1:40000", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		require.Equal(t, "ok", health.Status)
		require.Equal(t, "ok", health.Checks.Cache)
	})

	t.Run("readyz degrades on cache outage", func(t *testing.T) {
		tr.redis.SetError("connection refused")
		defer tr.redis.SetError("")

		rec := tr.do(t, http.MethodGet, "/readyz", "10.0.0.1:40000", nil, nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
