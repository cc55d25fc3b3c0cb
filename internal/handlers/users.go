package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/service"
)

func (h *UserHandler) Profile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	u, err := h.Users.Profile(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return ok(c, "", u)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req service.ProfilePatch
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Users.UpdateProfile(c.Request().Context(), id.UserID, req)
	if err != nil {
		return err
	}
	return ok(c, "profile updated", u)
}

func (h *UserHandler) AllUsers(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	users, err := h.Users.List(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return ok(c, "", users)
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	target, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	self, err := h.Users.Delete(c.Request().Context(), who, target)
	if err != nil {
		return err
	}
	if self {
		c.SetCookie(auth.ClearedSessionCookie())
	}
	return ok(c, "user deleted", nil)
}
