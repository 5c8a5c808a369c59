package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/auth/service"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// AuthnMiddleware authenticates the request's bearer access token and places
// the validated identity in the context. A missing or invalid token gets a
// bearer challenge per RFC 6750.
func AuthnMiddleware(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httpx.BearerToken(r)
			if !ok {
				writeBearerError(w, "invalid_request", "Missing bearer token")
				return
			}

			identity, err := auth.Validate(r.Context(), token)
			if err != nil {
				writeBearerError(w, "invalid_token", "Access token is invalid, expired or revoked")
				return
			}

			ctx := context.WithValue(r.Context(), httpx.CtxKeyUserID, identity.SubjectID)
			ctx = context.WithValue(ctx, httpx.CtxKeyRole, string(identity.Role))
			ctx = context.WithValue(ctx, httpx.CtxKeyIdentity, identity)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity stored by AuthnMiddleware.
func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(httpx.CtxKeyIdentity).(service.Identity)
	return id, ok
}

func writeBearerError(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	httpx.WriteError(w, http.StatusUnauthorized, code, description)
}
