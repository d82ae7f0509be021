package httpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/service"
)

const gatewaySignatureHeader = "X-Gateway-Signature"

// WebhookVerifier authenticates a gateway delivery from its raw body.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

type WebhookHandler struct {
	Orders   *service.OrderService
	Verifier WebhookVerifier
}

func (h *WebhookHandler) Gateway(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	if !h.Verifier.VerifyWebhookSignature(body, c.Request().Header.Get(gatewaySignatureHeader)) {
		logging.FromContext(c.Request().Context()).Warn("webhook signature mismatch")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	var ev service.GatewayEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if err := h.Orders.HandleGatewayEvent(c.Request().Context(), ev); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "processed", nil)
}
