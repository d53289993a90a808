package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/service"
	"github.com/iliyamo/school-management/internal/token"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorBody{Error: code, Message: msg})
}

// writeError maps a domain error to its HTTP response.  Anything unknown is
// logged and reported as a bare 500.
func writeError(c echo.Context, log logging.Logger, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_error", Message: "invalid request", Fields: ve.Fields})
	}

	switch {
	case errors.Is(err, service.ErrInvalidRole):
		return fail(c, http.StatusBadRequest, "invalid_user_type", "user_type is not allowed")
	case errors.Is(err, service.ErrSelfDeactivation):
		return fail(c, http.StatusBadRequest, "self_deactivation", "cannot deactivate your own account")
	case errors.Is(err, repository.ErrDuplicateEmail):
		return fail(c, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, service.ErrAlreadyOnboarded):
		return fail(c, http.StatusConflict, "already_onboarded", "account already onboarded")
	case errors.Is(err, service.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, token.ErrExpired):
		return fail(c, http.StatusUnauthorized, "token_expired", "token expired")
	case errors.Is(err, token.ErrRevoked):
		return fail(c, http.StatusUnauthorized, "token_revoked", "token revoked")
	case errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrSignatureInvalid):
		return fail(c, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, identity.ErrNotAuthenticated):
		return fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, service.ErrRefreshRevoked):
		return fail(c, http.StatusForbidden, "refresh_revoked", "refresh token revoked")
	case errors.Is(err, service.ErrInvalidTokenType):
		return fail(c, http.StatusForbidden, "invalid_token_type", "wrong token type")
	case errors.Is(err, identity.ErrAccountNotActive):
		return fail(c, http.StatusForbidden, "account_not_active", "account not active")
	case errors.Is(err, identity.ErrForbidden):
		return fail(c, http.StatusForbidden, "forbidden", "insufficient role")
	case errors.Is(err, service.ErrAccountNotFound):
		return fail(c, http.StatusNotFound, "account_not_found", "account not found")
	}

	log.Error(c.Request().Context(), "request failed", "path", c.Path(), "err", err)
	return fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}
