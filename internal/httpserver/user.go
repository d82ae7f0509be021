package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/service"
)

type UserHandler struct {
	Users *service.UserService
}

func (h *UserHandler) List(c echo.Context) error {
	users, pg, err := h.Users.List(c.Request().Context(), c.QueryParam("role"),
		queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"users": users, "pagination": pg})
}

func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	user, err := h.Users.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", user)
}

func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in service.UpdateUserInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.Users.Update(c.Request().Context(), currentUser(c).ID, id, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "user updated", user)
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandler) SetRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req setRoleRequest
	if err := c.Bind(&req); err != nil || req.Role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role is required")
	}
	user, err := h.Users.SetRole(c.Request().Context(), currentUser(c).ID, id, req.Role)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "role updated", user)
}

func (h *UserHandler) Block(c echo.Context) error {
	return h.setActive(c, false, "user blocked")
}

func (h *UserHandler) Unblock(c echo.Context) error {
	return h.setActive(c, true, "user unblocked")
}

func (h *UserHandler) setActive(c echo.Context, active bool, message string) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	user, err := h.Users.SetActive(c.Request().Context(), currentUser(c).ID, id, active)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, message, user)
}
