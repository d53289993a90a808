package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/service"
	"github.com/iliyamo/school-management/internal/token"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&service.ValidationError{Fields: map[string]string{"email": "cannot be blank"}}, http.StatusBadRequest, "validation_error"},
		{service.ErrInvalidRole, http.StatusBadRequest, "invalid_user_type"},
		{fmt.Errorf("create: %w", repository.ErrDuplicateEmail), http.StatusConflict, "email_taken"},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{token.ErrExpired, http.StatusUnauthorized, "token_expired"},
		{fmt.Errorf("%w: bad", token.ErrMalformed), http.StatusUnauthorized, "invalid_token"},
		{token.ErrSignatureInvalid, http.StatusUnauthorized, "invalid_token"},
		{service.ErrRefreshRevoked, http.StatusForbidden, "refresh_revoked"},
		{service.ErrInvalidTokenType, http.StatusForbidden, "invalid_token_type"},
		{identity.ErrForbidden, http.StatusForbidden, "forbidden"},
		{service.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{service.ErrAlreadyOnboarded, http.StatusConflict, "already_onboarded"},
		{errors.New("connection reset by peer"), http.StatusInternalServerError, "internal_error"},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeError(c, logging.Discard(), tc.err))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tc.code+`"`)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}
