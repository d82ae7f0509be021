package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/service"
)

type AuthHandler struct {
	Auth *service.AuthService
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, pair, err := h.Auth.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "registered", echo.Map{"user": user, "tokens": pair})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, pair, err := h.Auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "logged in", echo.Map{"user": user, "tokens": pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}
	pair, err := h.Auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "token refreshed", pair)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.Auth.Logout(c.Request().Context(), currentUser(c).ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) Me(c echo.Context) error {
	return respond(c, http.StatusOK, "", currentUser(c))
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.Auth.UpdateProfile(c.Request().Context(), currentUser(c).ID, req.Name)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "profile updated", user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.Auth.ChangePassword(c.Request().Context(), currentUser(c).ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "password changed", nil)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	user, err := h.Auth.VerifyEmail(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "email verified", user)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	if err := h.Auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	// Same response whether or not the address exists.
	return respond(c, http.StatusOK, "if that email is registered, a reset link has been sent", nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if _, err := h.Auth.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "password has been reset", nil)
}
