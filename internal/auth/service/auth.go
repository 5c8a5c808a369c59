package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/auth/cache"
	"github.com/aussiebroadwan/tollgate/internal/auth/domain"
	"github.com/aussiebroadwan/tollgate/internal/auth/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
	"github.com/aussiebroadwan/tollgate/pkg/tokenx"
)

var (
	ErrDuplicateIdentity = errors.New("duplicate_identity")

	// ErrInvalidCredentials covers "no such account", "wrong password" and
	// "account suspended" alike; the split is deliberately not exposed so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrInvalidToken covers malformed, tampered, expired, wrong-kind and
	// revoked tokens alike, for the same reason.
	ErrInvalidToken = errors.New("invalid_token")
)

// AuthService orchestrates the token lifecycle: registration, login, refresh
// rotation, logout revocation and access-token validation.
type AuthService struct {
	Codec      *tokenx.Codec
	Store      store.Store
	Cache      cache.Store
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Identity is the outcome of a successful access-token validation, attached
// to the request context for downstream authorization checks.
type Identity struct {
	SubjectID string
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// Register creates a new principal and signs them in.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*domain.TokenPair, domain.Principal, error) {
	l := slogx.FromContext(ctx)

	// 1. Reject emails that are already registered
	_, err := s.Store.Users().GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, domain.Principal{}, ErrDuplicateIdentity
	case !errors.Is(err, store.ErrNotFound):
		return nil, domain.Principal{}, err
	}

	// 2. Hash the password before anything is persisted
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, domain.Principal{}, err
	}

	// 3. Create the principal. A concurrent registration of the same email
	// loses on the unique constraint, which maps to the same duplicate error.
	p := domain.Principal{
		ID:           idx.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Active:       true,
	}
	if err := s.Store.Users().CreateUser(ctx, p); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domain.Principal{}, ErrDuplicateIdentity
		}
		return nil, domain.Principal{}, err
	}

	l.Info("principal registered", "user_id", p.ID)

	// 4. Issue the initial token pair
	pair, err := s.issuePair(p)
	if err != nil {
		return nil, domain.Principal{}, err
	}
	return pair, p, nil
}

// Login authenticates a principal by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	// 1. Look up the principal
	p, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// 2. Compare password hashes
	if err := cryptox.VerifyPassword(password, p.PasswordHash); err != nil {
		l.Info("login password verification failed", "user_id", p.ID)
		return nil, ErrInvalidCredentials
	}

	// 3. Suspended accounts get the same generic failure
	if !p.Active {
		l.Info("login rejected for suspended principal", "user_id", p.ID)
		return nil, ErrInvalidCredentials
	}

	// 4. Issue a fresh pair
	return s.issuePair(p)
}

// Refresh redeems a refresh token for a new token pair, rotating it: the
// presented token's identifier is revoked before the new pair exists, so of
// any number of concurrent redemptions of the same token exactly one wins.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	// 1. Verify signature, expiry, and that this really is a refresh token
	claims, err := s.Codec.Verify(refreshToken, tokenx.KindRefresh)
	if err != nil {
		l.Warn("refresh token verification failed", "err", err)
		return nil, ErrInvalidToken
	}

	// 2. Revoke the presented identifier for its remaining lifetime. The
	// write doubles as the replay check: it only succeeds for the first
	// caller, so a reused or concurrently replayed token loses here. A
	// store failure fails closed, trading availability for single-use
	// integrity.
	first, err := s.Cache.Blacklist(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
	if err != nil {
		l.Error("refresh revocation store unreachable, rejecting", "err", err)
		return nil, ErrInvalidToken
	}
	if !first {
		l.Warn("refresh token replay detected", "user_id", claims.Subject)
		return nil, ErrInvalidToken
	}

	// 3. Confirm the subject still exists and is in good standing
	p, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !p.Active {
		l.Info("refresh rejected for suspended principal", "user_id", p.ID)
		return nil, ErrInvalidToken
	}

	// 4. Issue the replacement pair. The old token is already dead by this
	// point; if the caller disconnects before receiving the new pair, both
	// are unusable, which errs toward revocation.
	return s.issuePair(p)
}

// Logout revokes the presented access token for its remaining lifetime.
// It never reports failure: client-observable logout must not be blocked by
// server-side bookkeeping, so a missing, invalid or unrevocable token is
// logged and swallowed. The cost is that on a revocation-store outage the
// token stays valid until natural expiry.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	l := slogx.FromContext(ctx)

	if accessToken == "" {
		return
	}

	claims, err := s.Codec.Verify(accessToken, tokenx.KindAccess)
	if err != nil {
		l.Debug("logout with unverifiable token ignored", "err", err)
		return
	}

	if _, err := s.Cache.Blacklist(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		l.Error("logout revocation write failed, token remains valid until expiry",
			"user_id", claims.Subject,
			"err", err,
		)
		return
	}

	l.Info("access token revoked on logout", "user_id", claims.Subject)
}

// Validate checks an access token for downstream request authentication.
// A revocation-store failure fails closed here: "cannot confirm validity"
// rejects the request rather than accepting a possibly revoked token.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (Identity, error) {
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Verify(accessToken, tokenx.KindAccess)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	revoked, err := s.Cache.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		l.Error("revocation lookup failed, rejecting token", "err", err)
		return Identity{}, ErrInvalidToken
	}
	if revoked {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		SubjectID: claims.Subject,
		Role:      domain.Role(claims.Role),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *AuthService) issuePair(p domain.Principal) (*domain.TokenPair, error) {
	access, _, err := s.Codec.Issue(p.ID, string(p.Role), tokenx.KindAccess, s.AccessTTL)
	if err != nil {
		return nil, err
	}

	refresh, _, err := s.Codec.Issue(p.ID, string(p.Role), tokenx.KindRefresh, s.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL.Seconds()),
	}, nil
}
