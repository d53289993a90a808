package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/identity"
)

// Guard enforces an ordered guard pipeline on the resolved identity.
func Guard(guards ...identity.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := identity.Check(CurrentIdentity(c), guards...); err != nil {
				return deny(c, err)
			}
			return next(c)
		}
	}
}

func deny(c echo.Context, err error) error {
	switch {
	case errors.Is(err, identity.ErrNotAuthenticated):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, identity.ErrAccountNotActive):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account_not_active", "message": err.Error()})
	default:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "insufficient role"})
	}
}
