package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/token"
)

type stubDecoder struct {
	claims map[string]*token.Claims
	err    error
}

func (s stubDecoder) Decode(_ context.Context, raw string) (*token.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.claims[raw]
	if !ok {
		return nil, token.ErrMalformed
	}
	return c, nil
}

type stubAccounts struct {
	accounts map[uint64]model.Account
	err      error
	calls    int
}

func (s *stubAccounts) FindByID(_ context.Context, id uint64) (model.Account, error) {
	s.calls++
	if s.err != nil {
		return model.Account{}, s.err
	}
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, repository.ErrNotFound
	}
	return a, nil
}

func claimsFor(sub string, typ token.Type) *token.Claims {
	return &token.Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ID:        "jti-" + sub + "-" + string(typ),
			ExpiresAt: jwt.NewNumericDate(time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)),
		},
	}
}

func fixtures() (stubDecoder, *stubAccounts) {
	dec := stubDecoder{claims: map[string]*token.Claims{
		"good":    claimsFor("7", token.TypeAccess),
		"refresh": claimsFor("7", token.TypeRefresh),
		"ghost":   claimsFor("99", token.TypeAccess),
		"off":     claimsFor("8", token.TypeAccess),
	}}
	accounts := &stubAccounts{accounts: map[uint64]model.Account{
		7: {ID: 7, Email: "t@school.test", Status: model.StatusPendingOnboarding, RoleName: model.RoleTeacher, IsActive: true},
		8: {ID: 8, Email: "off@school.test", Status: model.StatusActive, RoleName: model.RoleTeacher, IsActive: false},
	}}
	return dec, accounts
}

// resolveWith runs ResolveIdentity for a request carrying the given
// Authorization header and returns the identity seen by the handler.
func resolveWith(t *testing.T, dec TokenDecoder, accounts AccountFinder, header string) identity.Identity {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got identity.Identity
	h := ResolveIdentity(dec, accounts, logging.Discard())(func(c echo.Context) error {
		got = CurrentIdentity(c)
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return got
}

func TestResolveIdentity_Authenticated(t *testing.T) {
	dec, accounts := fixtures()
	id := resolveWith(t, dec, accounts, "Bearer good")

	assert.True(t, id.Authenticated())
	assert.EqualValues(t, 7, id.AccountID)
	assert.Equal(t, model.RoleTeacher, id.Role)
	assert.Equal(t, model.StatusPendingOnboarding, id.Status)
	assert.True(t, id.Active)
	assert.Equal(t, "jti-7-access", id.TokenID)
	assert.Equal(t, 1, accounts.calls)

	assert.True(t, resolveWith(t, dec, accounts, "bearer   good ").Authenticated())
}

func TestResolveIdentity_Anonymous(t *testing.T) {
	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic Z29vZA==",
		"empty token":   "Bearer ",
		"undecodable":   "Bearer nope",
		"refresh token": "Bearer refresh",
		"missing acct":  "Bearer ghost",
		"disabled acct": "Bearer off",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			dec, accounts := fixtures()
			id := resolveWith(t, dec, accounts, header)
			assert.False(t, id.Authenticated())
		})
	}
}

func TestResolveIdentity_FailuresAreAnonymous(t *testing.T) {
	dec, accounts := fixtures()
	accounts.err = errors.New("db down")
	assert.False(t, resolveWith(t, dec, accounts, "Bearer good").Authenticated())

	_, accounts = fixtures()
	assert.False(t, resolveWith(t, stubDecoder{err: errors.New("ledger down")}, accounts, "Bearer good").Authenticated())
	assert.Zero(t, accounts.calls)
}

func TestCurrentIdentity_Default(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, identity.Anonymous, CurrentIdentity(c))
}
