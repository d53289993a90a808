// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/school-management/internal/config"
	"github.com/iliyamo/school-management/internal/handler"
	"github.com/iliyamo/school-management/internal/identity"
	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/middleware"
	"github.com/iliyamo/school-management/internal/model"
)

// Deps is everything the HTTP surface needs.  Redis may be nil, which turns
// rate limiting and the response cache off.
type Deps struct {
	DB        *sql.DB
	Auth      *handler.AuthHandler
	Admin     *handler.AdminHandler
	Tokens    middleware.TokenDecoder
	Accounts  middleware.AccountFinder
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Log       logging.Logger
}

// New builds the echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.ResolveIdentity(d.Tokens, d.Accounts, d.Log))
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth,
		middleware.RateLimit(d.RateLimit, d.Redis, d.Log),
		middleware.ResponseCache(d.Cache, d.Redis, d.Log))
	RegisterAdmin(e, d.Admin)
	return e
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers the session endpoints under /auth.  limit guards the
// credential-accepting endpoints; cache fronts the public role list.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit, cache echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/logout", a.Logout)
	g.GET("/verify", a.Verify)
	g.GET("/roles", a.Roles, cache)

	authed := middleware.Guard(identity.RequireAuthenticated)
	g.POST("/logout-all", a.LogoutAll, authed)
	g.GET("/me", a.Me, authed)
}

// RegisterAdmin registers account administration, restricted to onboarded
// ADMIN accounts.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler) {
	g := e.Group("/admin", middleware.Guard(
		identity.RequireAuthenticated,
		identity.RequireActiveAccount,
		identity.RequireAnyRole(model.RoleAdmin),
	))
	g.POST("/accounts/:id/activate", a.Activate)
	g.POST("/accounts/:id/deactivate", a.Deactivate)
}
