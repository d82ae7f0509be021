package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/service"
)

type NotificationHandler struct {
	Notifications *service.NotificationService
}

func (h *NotificationHandler) List(c echo.Context) error {
	list, err := h.Notifications.List(c.Request().Context(), currentUser(c).ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", list)
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	n, err := h.Notifications.MarkRead(c.Request().Context(), currentUser(c).ID, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "notification marked as read", n)
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	if err := h.Notifications.MarkAllRead(c.Request().Context(), currentUser(c).ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "all notifications marked as read", nil)
}
