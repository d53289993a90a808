package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/school-management/internal/handler"
	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/middleware"
	"github.com/iliyamo/school-management/internal/model"
	"github.com/iliyamo/school-management/internal/repository"
	"github.com/iliyamo/school-management/internal/service"
	"github.com/iliyamo/school-management/internal/testutil"
	"github.com/iliyamo/school-management/internal/token"
	"github.com/iliyamo/school-management/internal/utils"
)

type server struct {
	t     *testing.T
	e     *echo.Echo
	hash  *utils.PasswordHasher
	accts *repository.AccountRepo
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	log := logging.Discard()
	codec := token.NewCodec("router-test-secret", repository.NewRevocationRepo(db))
	hasher, err := utils.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	sessions := service.NewSessionManager(db, codec, hasher, nil, log, service.SessionConfig{
		SelfRegisterRoles: []string{"TEACHER", "STUDENT", "PARENT"},
		PhoneRegion:       "IN",
	})
	accounts := repository.NewAccountRepo(db)
	e := New(Deps{
		DB:       db,
		Auth:     handler.NewAuthHandler(sessions, log),
		Admin:    handler.NewAdminHandler(service.NewOnboarding(db, nil, log), log),
		Tokens:   codec,
		Accounts: accounts,
		Log:      log,
	})
	e.GET("/classes", func(c echo.Context) error { return c.String(http.StatusOK, "classes") },
		middleware.Guard(identity.RequireAuthenticated, identity.RequireActiveAccount))

	return &server{t: t, e: e, hash: hasher, accts: accounts}
}

func (s *server) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type registered struct {
	User struct {
		ID     uint64 `json:"id"`
		Email  string `json:"email"`
		Status string `json:"status"`
		Role   string `json:"role"`
	} `json:"user"`
	Tokens tokens `json:"tokens"`
}

type apiError struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func (s *server) register(email, userType string) registered {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/register", "", echo.Map{
		"email": email, "password": "correct-horse", "full_name": "Some One", "user_type": userType,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[registered](s.t, rec)
}

func (s *server) login(email, password string) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(http.MethodPost, "/auth/login", "", echo.Map{"email": email, "password": password})
}

func (s *server) admin() tokens {
	s.t.Helper()
	hash, err := s.hash.Hash("admin-password")
	require.NoError(s.t, err)
	_, err = s.accts.Create(context.Background(), repository.NewAccount{
		Email: "root@school.test", PasswordHash: hash, FullName: "Root", RoleID: 1,
		Status: model.StatusActive, IsActive: true, At: time.Now().UTC(),
	})
	require.NoError(s.t, err)
	rec := s.login("root@school.test", "admin-password")
	require.Equal(s.t, http.StatusOK, rec.Code)
	return decode[tokens](s.t, rec)
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)
}

func TestScenario_RegisterLoginOnboard(t *testing.T) {
	s := newServer(t)
	reg := s.register("alice@example.com", "TEACHER")
	assert.Equal(t, "PENDING_ONBOARDING", reg.User.Status)
	assert.Equal(t, "TEACHER", reg.User.Role)
	assert.Equal(t, "Bearer", reg.Tokens.TokenType)
	assert.EqualValues(t, 900, reg.Tokens.ExpiresIn)

	rec := s.login("alice@example.com", "correct-horse")
	require.Equal(t, http.StatusOK, rec.Code)
	tk := decode[tokens](t, rec)

	rec = s.do(http.MethodGet, "/classes", tk.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_not_active", decode[apiError](t, rec).Error)

	me := s.do(http.MethodGet, "/auth/me", tk.AccessToken, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"status":"PENDING_ONBOARDING"`)

	root := s.admin()
	rec = s.do(http.MethodPost, "/admin/accounts/1/activate", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Same access token: the identity is rebuilt from the account each request.
	rec = s.do(http.MethodGet, "/classes", tk.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/admin/accounts/1/activate", root.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScenario_WrongPasswordTwice(t *testing.T) {
	s := newServer(t)
	s.register("bob@example.com", "STUDENT")

	first := s.login("bob@example.com", "nope-1")
	second := s.login("bob@example.com", "nope-2")
	unknown := s.login("ghost@example.com", "nope-3")

	for _, rec := range []*httptest.ResponseRecorder{first, second, unknown} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Body.String(), unknown.Body.String())
	assert.Equal(t, "invalid_credentials", decode[apiError](t, first).Error)
}

func TestScenario_RefreshTwice(t *testing.T) {
	s := newServer(t)
	reg := s.register("carol@example.com", "PARENT")

	rec := s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[tokens](t, rec)
	assert.NotEqual(t, reg.Tokens.RefreshToken, next.RefreshToken)

	rec = s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": reg.Tokens.RefreshToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "refresh_revoked", decode[apiError](t, rec).Error)
}

func TestRefresh_Errors(t *testing.T) {
	s := newServer(t)
	reg := s.register("dora@example.com", "STUDENT")

	rec := s.do(http.MethodPost, "/auth/refresh", "", echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": "abc.def.ghi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": reg.Tokens.AccessToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid_token_type", decode[apiError](t, rec).Error)
}

func TestRegister_Errors(t *testing.T) {
	s := newServer(t)
	s.register("eve@example.com", "TEACHER")

	rec := s.do(http.MethodPost, "/auth/register", "", echo.Map{
		"email": "EVE@example.com", "password": "correct-horse", "full_name": "Eve", "user_type": "TEACHER",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/auth/register", "", echo.Map{
		"email": "new@example.com", "password": "correct-horse", "full_name": "New", "user_type": "ADMIN",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user_type", decode[apiError](t, rec).Error)

	rec = s.do(http.MethodPost, "/auth/register", "", echo.Map{"email": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[apiError](t, rec)
	assert.Equal(t, "validation_error", e.Error)
	assert.Contains(t, e.Fields, "password")
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	reg := s.register("finn@example.com", "STUDENT")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/logout", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/auth/logout", "garbage", nil).Code)

	rec := s.do(http.MethodPost, "/auth/logout", reg.Tokens.AccessToken, echo.Map{"refresh_token": reg.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refresh_revoked":true`)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/verify", reg.Tokens.AccessToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/me", reg.Tokens.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/auth/logout", reg.Tokens.AccessToken, nil).Code)

	rec = s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": reg.Tokens.RefreshToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	s := newServer(t)
	reg := s.register("gia@example.com", "PARENT")
	second := decode[tokens](t, s.login("gia@example.com", "correct-horse"))

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/logout-all", "", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/auth/logout-all", second.AccessToken, nil).Code)

	for _, rt := range []string{reg.Tokens.RefreshToken, second.RefreshToken} {
		rec := s.do(http.MethodPost, "/auth/refresh", "", echo.Map{"refresh_token": rt})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/verify", second.AccessToken, nil).Code)
	// The other access token was not the one presented; it lives until expiry.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/auth/verify", reg.Tokens.AccessToken, nil).Code)
}

func TestVerify(t *testing.T) {
	s := newServer(t)
	reg := s.register("hana@example.com", "TEACHER")

	rec := s.do(http.MethodGet, "/auth/verify", reg.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "access", body["token"].(map[string]any)["type"])

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/verify", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/verify", reg.Tokens.RefreshToken, nil).Code)

	root := s.admin()
	rec = s.do(http.MethodPost, "/admin/accounts/1/deactivate", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"revoked_sessions":1`)

	rec = s.do(http.MethodGet, "/auth/verify", reg.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/auth/me", reg.Tokens.AccessToken, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/auth/logout-all", reg.Tokens.AccessToken, nil).Code)
}

func TestAdmin_Guards(t *testing.T) {
	s := newServer(t)
	reg := s.register("ivan@example.com", "TEACHER")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/admin/accounts/1/activate", "", nil).Code)
	rec := s.do(http.MethodPost, "/admin/accounts/1/activate", reg.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	root := s.admin()
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/accounts/abc/activate", root.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/admin/accounts/999/activate", root.AccessToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/accounts/2/deactivate", root.AccessToken, nil).Code)
}

func TestRoles(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/auth/roles", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"roles":["TEACHER","STUDENT","PARENT"]}`, rec.Body.String())
}
