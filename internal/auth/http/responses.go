package http

import "github.com/aussiebroadwan/tollgate/internal/auth/domain"

// PrincipalResponse is the public view of a principal; password material and
// the active flag never leave the service.
type PrincipalResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// RegisterResponse bundles the new principal with their first token pair.
type RegisterResponse struct {
	User   PrincipalResponse `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// ValidateResponse echoes the validated identity back to the caller,
// typically a downstream service checking a forwarded bearer token.
type ValidateResponse struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// HealthChecks reports per-dependency status for the readiness probe.
type HealthChecks struct {
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

// HealthResponse is returned by the /livez and /readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
