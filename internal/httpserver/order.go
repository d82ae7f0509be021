package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/service"
)

type OrderHandler struct {
	Orders *service.OrderService
}

type createOrderRequest struct {
	Items []service.OrderItemInput `json:"items"`
}

func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.Orders.Create(c.Request().Context(), currentUser(c).ID, req.Items)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "order created", result)
}

type verifyOrderRequest struct {
	OrderID   uint   `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *OrderHandler) Verify(c echo.Context) error {
	var req verifyOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.OrderID == 0 || req.PaymentID == "" || req.Signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id, payment_id and signature are required")
	}
	order, err := h.Orders.Verify(c.Request().Context(), currentUser(c).ID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "payment verified", echo.Map{"status": order.Status, "order": order})
}

func (h *OrderHandler) ListMine(c echo.Context) error {
	orders, pg, err := h.Orders.ListMine(c.Request().Context(), currentUser(c).ID,
		c.QueryParam("status"), queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"orders": orders, "pagination": pg})
}

func (h *OrderHandler) ListAll(c echo.Context) error {
	orders, err := h.Orders.List(c.Request().Context(), currentUser(c).ID, true, queryInt(c, "limit", 100))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", orders)
}

func (h *OrderHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	user := currentUser(c)
	order, err := h.Orders.Get(c.Request().Context(), user.ID, user.Role == models.RoleAdmin, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", order)
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	user := currentUser(c)
	order, err := h.Orders.Cancel(c.Request().Context(), user.ID, user.Role == models.RoleAdmin, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "order cancelled", order)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	order, err := h.Orders.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "order status updated", order)
}
