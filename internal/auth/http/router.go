package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/auth/cache"
	"github.com/aussiebroadwan/tollgate/internal/auth/ratelimit"
	"github.com/aussiebroadwan/tollgate/internal/auth/service"
	"github.com/aussiebroadwan/tollgate/internal/auth/store"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	cache cache.Store

	AuthService *service.AuthService
	Limiter     *ratelimit.Limiter
	Resolver    *httpx.ProxyResolver
}

func NewRouter(
	auth *service.AuthService,
	limiter *ratelimit.Limiter,
	resolver *httpx.ProxyResolver,
	st store.Store,
	cs cache.Store,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		cache:        cs,
		AuthService:  auth,
		Limiter:      limiter,
		Resolver:     resolver,
	}

	// Global chain: request logging, then client-address resolution. The
	// resolver must run before any per-route rate limiting so counters key on
	// the resolved address, never on a spoofable header.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.Resolver.Middleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /register - strict limit by IP (account creation abuse)
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{AuthService: r.AuthService},
			r.Limiter.Middleware(ratelimit.ClassRegister),
		),
	)

	// POST /login - strict limit by IP (credential stuffing / brute force)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{AuthService: r.AuthService},
			r.Limiter.Middleware(ratelimit.ClassLogin),
		),
	)

	// POST /refresh - moderate limit; legitimate clients refresh often
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{AuthService: r.AuthService},
			r.Limiter.Middleware(ratelimit.ClassRefresh),
		),
	)

	// POST /logout - general limit; never fails outwardly
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{AuthService: r.AuthService},
			r.Limiter.Middleware(ratelimit.ClassGeneral),
		),
	)

	// GET /validate - authenticated introspection for downstream services
	r.Mux.Handle("GET /v1/auth/validate",
		httpx.Chain(&ValidateHandler{},
			r.Limiter.Middleware(ratelimit.ClassGeneral),
			AuthnMiddleware(r.AuthService),
		),
	)
}

func (r *Router) registerSystem() {
	// Health probes are polled by orchestration; general limit is plenty
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			r.Limiter.Middleware(ratelimit.ClassGeneral),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.cache),
			r.Limiter.Middleware(ratelimit.ClassGeneral),
		),
	)
}
