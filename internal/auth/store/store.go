package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tollgate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for the credential repository.
// Concrete drivers (sqlite, postgres) implement this. The auth service only
// depends on this interface, so the repository stays swappable.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a principal by id.
	GetUserByID(ctx context.Context, id string) (domain.Principal, error)

	// GetUserByEmail is used during login. Email match is case-insensitive.
	GetUserByEmail(ctx context.Context, email string) (domain.Principal, error)

	// CreateUser inserts a new principal (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is already registered.
	CreateUser(ctx context.Context, p domain.Principal) error
}
