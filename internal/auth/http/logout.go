package http

import (
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/auth/service"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

type LogoutHandler struct {
	AuthService *service.AuthService
}

type logoutResponse struct {
	Status string `json:"status"`
}

// ServeHTTP always reports success. A missing or unusable bearer token means
// there is nothing to revoke; a failed revocation is logged by the service
// and the token simply runs out its natural expiry.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, _ := httpx.BearerToken(r)

	h.AuthService.Logout(r.Context(), token)

	httpx.WriteJSON(w, http.StatusOK, logoutResponse{Status: "ok"})
}
