// Package cache defines the shared TTL key-value store used for server-side
// token revocation and rate-limit counters. It is the one mutable resource
// shared across service instances; every mutation is a single-key atomic
// operation so no application-side locking is needed.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps driver errors so callers can make their fail-open or
// fail-closed decision without knowing the backend.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store is the revocation and counter store contract.
type Store interface {
	// Blacklist records a token identifier as revoked for the given TTL.
	// It reports whether this call created the entry: in a race between
	// concurrent revocations of the same identifier exactly one caller
	// observes first=true, which is how single-use refresh rotation is
	// enforced. A non-positive TTL is a no-op (the token is already dead
	// by expiry and needs no entry); it reports first=true.
	Blacklist(ctx context.Context, tokenID string, ttl time.Duration) (first bool, err error)

	// IsBlacklisted is a point lookup for a revoked token identifier.
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)

	// IncrementCounter atomically increments the counter at key, creating
	// it with value 1 and the given window TTL on first touch. The TTL is
	// never extended by later increments inside the same window, keeping
	// the window fixed rather than sliding.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// CounterValue reads a counter without modifying it. Missing keys
	// read as zero.
	CounterValue(ctx context.Context, key string) (int64, error)

	// Ping verifies the store connection is alive.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}
