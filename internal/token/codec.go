// Package token signs and verifies the compact bearer tokens of the service.
//
// Tokens are HS256 JWTs carrying only {sub, jti, type, iat, exp}.  Access
// tokens additionally go through a revocation lookup on every Decode; refresh
// tokens are checked against their persisted row by the session service.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes are fixed policy.
const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

// Type discriminates access from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

var (
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrRevoked          = errors.New("token revoked")
)

// RevocationChecker is the read side of the access-token ledger.
type RevocationChecker interface {
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims is the decoded payload.
type Claims struct {
	Type Type `json:"type"`
	jwt.RegisteredClaims
}

// AccountID parses the subject back into a numeric account id.
func (c *Claims) AccountID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: subject %q", ErrMalformed, c.Subject)
	}
	return id, nil
}

// ExpiresAtTime returns the exp claim in UTC (zero when absent).
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// Issued is a freshly signed token together with the values a caller needs
// to persist or report it.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and decodes tokens with a single HMAC secret.
type Codec struct {
	secret  []byte
	revoked RevocationChecker
	now     func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source; tests use it to move past expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec.  revoked may not be nil: every access-token decode
// consults it.
func NewCodec(secret string, revoked RevocationChecker, opts ...Option) *Codec {
	c := &Codec{
		secret:  []byte(secret),
		revoked: revoked,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// IssueAccess signs a short-lived access token for accountID.
func (c *Codec) IssueAccess(accountID uint64) (Issued, error) {
	return c.issue(accountID, TypeAccess, AccessTTL)
}

// IssueRefresh signs a long-lived refresh token for accountID.
func (c *Codec) IssueRefresh(accountID uint64) (Issued, error) {
	return c.issue(accountID, TypeRefresh, RefreshTTL)
}

func (c *Codec) issue(accountID uint64, typ Type, ttl time.Duration) (Issued, error) {
	if accountID == 0 {
		return Issued{}, errors.New("issue token: zero account id")
	}
	// Whole seconds: exp/iat are serialized as NumericDate seconds anyway.
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(accountID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return Issued{Token: signed, ID: jti, IssuedAt: now, ExpiresAt: exp}, nil
}

// Decode verifies signature and expiry and returns the claims.  For access
// tokens it also consults the revocation ledger; a ledger failure is returned
// as an error, never treated as "not revoked".
func (c *Codec) Decode(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", ErrMalformed)
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}

	switch claims.Type {
	case TypeAccess:
		revoked, err := c.revoked.IsAccessRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("revocation lookup: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	case TypeRefresh:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, claims.Type)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// IsRejection reports whether err means the token itself is unacceptable, as
// opposed to an infrastructure failure while checking it.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrRevoked)
}
