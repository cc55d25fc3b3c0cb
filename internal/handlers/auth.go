package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_catalog/internal/auth"
	"github.com/Skotchmaster/online_catalog/internal/service"
)

type UserHandler struct {
	Users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

func identity(c echo.Context) (*auth.Identity, error) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return nil, auth.ErrMissingCredential
	}
	return id, nil
}

func (h *UserHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Users.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "user registered, check your email to verify the account", u)
}

func (h *UserHandler) Login(c echo.Context) error {
	var req service.LoginInput
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.Users.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	c.SetCookie(auth.SessionCookie(s.Token, s.ExpiresAt))
	return ok(c, "logged in", s)
}

func (h *UserHandler) LogOut(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	if err := h.Users.Logout(c.Request().Context(), id); err != nil {
		return err
	}
	c.SetCookie(auth.ClearedSessionCookie())
	return ok(c, "logged out", nil)
}

func (h *UserHandler) VerifyEmail(c echo.Context) error {
	u, err := h.Users.VerifyEmail(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return ok(c, "email verified", u)
}

// ChangePassword ends the current session on success.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req service.PasswordChange
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Users.ChangePassword(c.Request().Context(), id, req); err != nil {
		return err
	}
	c.SetCookie(auth.ClearedSessionCookie())
	return ok(c, "password changed, please log in again", nil)
}
