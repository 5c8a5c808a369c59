package domain

import "time"

// Role enumerates the principal roles carried in issued tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated identity held in the credential store.
// The auth subsystem only ever reads it; profile management lives elsewhere.
type Principal struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // argon2 encoded
	Role         Role
	Active       bool // suspended accounts cannot authenticate
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
