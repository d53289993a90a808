// Package middleware holds the echo middleware of the service: identity
// resolution, authorization guards, request logging, rate limiting and the
// response cache.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/token"
)

const identityKey = "identity"

// TokenDecoder verifies a raw bearer token.
type TokenDecoder interface {
	Decode(ctx context.Context, raw string) (*token.Claims, error)
}

// AccountFinder loads an account in any state.
type AccountFinder interface {
	FindByID(ctx context.Context, id uint64) (model.Account, error)
}

// ResolveIdentity decodes the bearer token, loads its account once and
// stores the resulting identity on the context.  Every failure yields the
// anonymous identity; rejecting is left to the guards.
func ResolveIdentity(dec TokenDecoder, accounts AccountFinder, log logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(identityKey, resolve(c, dec, accounts, log))
			return next(c)
		}
	}
}

func resolve(c echo.Context, dec TokenDecoder, accounts AccountFinder, log logging.Logger) identity.Identity {
	raw, ok := BearerToken(c.Request())
	if !ok {
		return identity.Anonymous
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	claims, err := dec.Decode(ctx, raw)
	if err != nil {
		if !token.IsRejection(err) {
			log.Warn(ctx, "identity: token check failed", "err", err)
		}
		return identity.Anonymous
	}
	if claims.Type != token.TypeAccess {
		return identity.Anonymous
	}
	id, err := claims.AccountID()
	if err != nil {
		return identity.Anonymous
	}
	acc, err := accounts.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn(ctx, "identity: account lookup failed", "account_id", id, "err", err)
		}
		return identity.Anonymous
	}
	if !acc.IsActive {
		return identity.Anonymous
	}
	return identity.FromAccount(&acc, claims.ID, claims.ExpiresAtTime())
}

// CurrentIdentity returns the identity resolved for this request, or the
// anonymous identity when ResolveIdentity did not run.
func CurrentIdentity(c echo.Context) identity.Identity {
	if id, ok := c.Get(identityKey).(identity.Identity); ok {
		return id
	}
	return identity.Anonymous
}

// BearerToken extracts the token of an "Authorization: Bearer" header.  The
// scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
