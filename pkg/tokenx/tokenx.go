package tokenx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for standard auth flows. These provide sensible
// security defaults but can be overridden per-service via configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// MinSecretLength is the minimum accepted signing secret length in bytes.
// HS256 keys shorter than the hash output size weaken the MAC, so anything
// below 32 bytes is rejected at startup.
const MinSecretLength = 32

// Kind distinguishes access tokens from refresh tokens. A refresh token must
// never be accepted where an access token is expected (and vice versa), so
// the kind is baked into the signed claims.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrWeakKey      = errors.New("tokenx: signing secret below minimum length")
	ErrMalformed    = errors.New("tokenx: malformed token")
	ErrBadSignature = errors.New("tokenx: invalid signature")
	ErrExpired      = errors.New("tokenx: token expired")
	ErrWrongKind    = errors.New("tokenx: wrong token kind")
)

// Claims are the signed token claims. We keep changes additive to preserve
// compatibility with already-issued tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated principal ("user", "admin").
	Role string `json:"role,omitempty"`

	// Kind marks the token as an access or refresh credential.
	Kind Kind `json:"tkn"`
}

// Codec issues and verifies signed tokens using a process-wide HS256 secret.
// The secret and issuer are immutable after construction.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec builds a Codec, rejecting secrets shorter than MinSecretLength so
// a weak configuration fails at startup rather than silently signing tokens
// with insufficient key material.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakKey
	}
	return &Codec{secret: secret, issuer: issuer}, nil
}

// Issue produces a signed, URL-safe credential embedding the subject, role,
// kind, and a freshly generated token identifier. The returned Claims mirror
// what was signed, so callers can read the JTI and expiry without re-parsing.
func (c *Codec) Issue(subject, role string, kind Kind, ttl time.Duration) (string, Claims, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role: role,
		Kind: kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify parses and validates a token, expecting the given kind.
//
// Errors are collapsed into the package sentinels: ErrMalformed for anything
// that fails to parse, ErrBadSignature for signature or algorithm mismatch,
// ErrExpired for a valid-but-stale token, and ErrWrongKind when an access
// token is presented where a refresh token is expected (or vice versa).
func (c *Codec) Verify(token string, kind Kind) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrMalformed
		}
	}

	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}

	return claims, nil
}

// NewJTI returns a URL-safe random identifier for the "jti" claim. 160 bits
// of entropy keeps collisions implausible within any revocation window.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
