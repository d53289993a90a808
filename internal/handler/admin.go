package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-management/internal/logging"
	"github.com/iliyamo/school-management/internal/middleware"
	"github.com/iliyamo/school-management/internal/service"
)

// AdminHandler exposes account administration to ADMIN identities.
type AdminHandler struct {
	Onboarding *service.Onboarding
	Log        logging.Logger
}

func NewAdminHandler(o *service.Onboarding, log logging.Logger) *AdminHandler {
	return &AdminHandler{Onboarding: o, Log: log}
}

// Activate completes onboarding of the account in :id.
func (h *AdminHandler) Activate(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "invalid_id", "invalid account id")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	acc, err := h.Onboarding.Activate(ctx, id, middleware.CurrentIdentity(c).AccountID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(acc)})
}

// Deactivate disables the account in :id and ends its sessions.
func (h *AdminHandler) Deactivate(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, http.StatusBadRequest, "invalid_id", "invalid account id")
	}
	ctx, cancel := timeout(c)
	defer cancel()

	n, err := h.Onboarding.Deactivate(ctx, id, middleware.CurrentIdentity(c).AccountID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "revoked_sessions": n})
}
