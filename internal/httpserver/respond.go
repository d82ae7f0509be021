package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/service"
)

type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, Envelope{Success: true, Message: message, Data: data})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler is the single boundary that maps operational errors onto the
// response envelope. Internal details leak only outside production.
func ErrorHandler(isProduction bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := statusFor(err)
		message := err.Error()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			}
		}

		if code == http.StatusInternalServerError {
			logging.FromContext(c.Request().Context()).Error("internal error", "error", err)
			if isProduction {
				message = "Internal Server Error"
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, Envelope{Success: false, Message: message})
	}
}
