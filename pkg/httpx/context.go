package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID   ctxKey = "user_id"
	CtxKeyRole     ctxKey = "role"
	CtxKeyIdentity ctxKey = "identity" // full validated identity, service-defined
	CtxKeyClientIP ctxKey = "client_ip"
)

// ClientIP returns the resolved client address placed in the context by the
// proxy resolver middleware, or "" if resolution has not run.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserID returns the authenticated subject id, or "" if the request has not
// passed authentication middleware.
func UserID(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}
