package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/tokens"
)

const userContextKey = "currentUser"

// AuthMiddleware resolves the bearer token to a live user record so that
// blocked or deleted accounts lose access immediately, not at token expiry.
type AuthMiddleware struct {
	DB        *gorm.DB
	JWTSecret []byte
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}

		claims, err := tokens.AccessClaimsFromToken(strings.TrimPrefix(header, "Bearer "), m.JWTSecret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		userID, err := claims.UserID()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}

		var user models.User
		if err := m.DB.WithContext(c.Request().Context()).First(&user, userID).Error; err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
		}
		if !user.IsActive {
			return echo.NewHTTPError(http.StatusForbidden, "account is blocked")
		}

		c.Set(userContextKey, &user)
		return next(c)
	}
}

// OptionalAuth resolves credentials when the request carries them but lets
// anonymous callers through. Invalid, stale or blocked-account tokens are
// treated as anonymous rather than rejected.
func (m *AuthMiddleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return next(c)
		}

		claims, err := tokens.AccessClaimsFromToken(strings.TrimPrefix(header, "Bearer "), m.JWTSecret)
		if err != nil {
			return next(c)
		}
		userID, err := claims.UserID()
		if err != nil {
			return next(c)
		}

		var user models.User
		if err := m.DB.WithContext(c.Request().Context()).First(&user, userID).Error; err == nil && user.IsActive {
			c.Set(userContextKey, &user)
		}
		return next(c)
	}
}

func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if currentUser(c).Role != models.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

func currentUser(c echo.Context) *models.User {
	u, _ := c.Get(userContextKey).(*models.User)
	return u
}
