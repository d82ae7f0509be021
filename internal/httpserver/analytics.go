package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/service"
)

type AnalyticsHandler struct {
	Analytics *service.AnalyticsService
}

func (h *AnalyticsHandler) Overview(c echo.Context) error {
	overview, err := h.Analytics.Overview(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", overview)
}

func (h *AnalyticsHandler) TopProducts(c echo.Context) error {
	top, err := h.Analytics.TopProducts(c.Request().Context(), queryInt(c, "limit", 10))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", top)
}

func (h *AnalyticsHandler) Revenue(c echo.Context) error {
	// The service owns the default range.
	resolved, buckets, err := h.Analytics.Revenue(c.Request().Context(), c.QueryParam("range"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"range": resolved, "buckets": buckets})
}

func (h *AnalyticsHandler) Inventory(c echo.Context) error {
	items, summary, err := h.Analytics.Inventory(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "", echo.Map{"items": items, "summary": summary})
}
