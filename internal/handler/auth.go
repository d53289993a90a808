package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/middleware"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/service"
	"github.com/iliyamo/school-management/internal/token"
)

// requestTimeout bounds the database work of a single request.
const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Sessions *service.SessionManager
	Log      logging.Logger
}

func NewAuthHandler(s *service.SessionManager, log logging.Logger) *AuthHandler {
	return &AuthHandler{Sessions: s, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
	UserType string  `json:"user_type"` // TEACHER | STUDENT | PARENT
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type userPart struct {
	ID          uint64     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Phone       *string    `json:"phone,omitempty"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func toUserPart(a model.Account) userPart {
	return userPart{
		ID:          a.ID,
		Email:       a.Email,
		FullName:    a.FullName,
		Phone:       a.Phone,
		Role:        a.RoleName,
		Status:      string(a.Status),
		IsActive:    a.IsActive,
		LastLoginAt: a.LastLoginAt,
	}
}

type registerResp struct {
	User   userPart          `json:"user"`
	Tokens service.TokenPair `json:"tokens"`
}

type tokenInfo struct {
	ID        string    `json:"id,omitempty"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Register: create a PENDING_ONBOARDING account and return its first tokens.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid_body", "invalid body")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	res, err := h.Sessions.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		UserType: req.UserType,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, registerResp{User: toUserPart(res.Account), Tokens: res.Tokens})
}

// Login: verify credentials and return a new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid_body", "invalid body")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	res, err := h.Sessions.Login(ctx, service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res.Tokens)
}

// Refresh: rotate the presented refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "invalid_body", "refresh_token required")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	pair, err := h.Sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout: revoke the bearer access token and, optionally, the refresh token
// in the body.  204 when there was nothing left to revoke.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, ok := middleware.BearerToken(c.Request())
	if !ok {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return fail(c, http.StatusUnauthorized, "unauthorized", "bearer token required")
	}
	var req refreshReq
	_ = c.Bind(&req) // body is optional

	ctx, cancel := timeout(c)
	defer cancel()

	res, err := h.Sessions.Logout(ctx, raw, req.RefreshToken)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !res.Revoked {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":         "logged out",
		"refresh_revoked": res.RefreshRevoked,
	})
}

// LogoutAll: revoke every session of the caller.  Requires an identity.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	id := middleware.CurrentIdentity(c)
	raw, _ := middleware.BearerToken(c.Request())

	ctx, cancel := timeout(c)
	defer cancel()

	if _, err := h.Sessions.LogoutAll(ctx, id.AccountID, raw); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Verify: report whether the bearer access token is usable.
func (h *AuthHandler) Verify(c echo.Context) error {
	raw, ok := middleware.BearerToken(c.Request())
	if !ok {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return fail(c, http.StatusUnauthorized, "unauthorized", "bearer token required")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	res, err := h.Sessions.Verify(ctx, raw)
	if err != nil {
		if token.IsRejection(err) || errors.Is(err, service.ErrInvalidTokenType) {
			return fail(c, http.StatusUnauthorized, "invalid_token", "invalid token")
		}
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"valid": true,
		"user":  toUserPart(res.Account),
		"token": tokenInfo{Type: string(res.Claims.Type), ExpiresAt: res.Claims.ExpiresAtTime()},
	})
}

// Me returns the identity resolved for this request.
func (h *AuthHandler) Me(c echo.Context) error {
	id := middleware.CurrentIdentity(c)
	return c.JSON(http.StatusOK, echo.Map{
		"id":     id.AccountID,
		"email":  id.Email,
		"role":   id.Role,
		"status": id.Status,
		"active": id.Active,
		"token":  tokenInfo{ID: id.TokenID, Type: string(token.TypeAccess), ExpiresAt: id.TokenExpiresAt},
	})
}

// Roles lists the user types accepted by Register.
func (h *AuthHandler) Roles(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	roles, err := h.Sessions.RegistrableRoles(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": names})
}
