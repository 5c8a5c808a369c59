package http

import (
	"net/http"

	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// ValidateHandler reports the identity behind a bearer access token. The
// token itself is checked by AuthnMiddleware; reaching this handler means it
// was valid and unrevoked.
type ValidateHandler struct{}

func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		// Route registered without the authn middleware
		writeBearerError(w, "invalid_request", "Missing bearer token")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ValidateResponse{
		UserID:    identity.SubjectID,
		Role:      string(identity.Role),
		ExpiresAt: identity.ExpiresAt.Unix(),
	})
}
