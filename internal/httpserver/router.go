package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/push"
	"github.com/sugarsphere/backend/internal/service"
)

// Deps carries everything the HTTP surface needs. Register wires the route
// tree; the caller owns the echo instance and its lifecycle.
type Deps struct {
	DB        *gorm.DB
	JWTSecret []byte

	Auth          *service.AuthService
	Catalog       *service.CatalogService
	Orders        *service.OrderService
	Notifications *service.NotificationService
	Analytics     *service.AnalyticsService
	Users         *service.UserService

	Hub      *push.Hub
	Verifier WebhookVerifier

	AllowedOrigins []string
}

func Register(e *echo.Echo, d Deps) {
	auth := &AuthMiddleware{DB: d.DB, JWTSecret: d.JWTSecret}

	authH := &AuthHandler{Auth: d.Auth}
	productH := &ProductHandler{Catalog: d.Catalog}
	orderH := &OrderHandler{Orders: d.Orders}
	notifH := &NotificationHandler{Notifications: d.Notifications}
	analyticsH := &AnalyticsHandler{Analytics: d.Analytics}
	userH := &UserHandler{Users: d.Users}
	webhookH := &WebhookHandler{Orders: d.Orders, Verifier: d.Verifier}

	if len(d.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     d.AllowedOrigins,
			AllowCredentials: true,
		}))
	}

	e.GET("/health/live", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/health/ready", func(c echo.Context) error {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request().Context())
		}
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	api := e.Group("/api")

	// Credential endpoints get a tighter rate limit than the rest.
	authGroup := api.Group("/auth", middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(5)))
	authGroup.POST("/register", authH.Register)
	authGroup.POST("/login", authH.Login)
	authGroup.POST("/refresh", authH.Refresh)
	authGroup.POST("/verify-email", authH.VerifyEmail)
	authGroup.POST("/forgot-password", authH.ForgotPassword)
	authGroup.POST("/reset-password", authH.ResetPassword)
	authGroup.POST("/logout", authH.Logout, auth.RequireAuth)
	authGroup.GET("/me", authH.Me, auth.RequireAuth)
	authGroup.PUT("/profile", authH.UpdateProfile, auth.RequireAuth)
	authGroup.POST("/change-password", authH.ChangePassword, auth.RequireAuth)

	products := api.Group("/products")
	products.GET("", productH.List, auth.OptionalAuth)
	products.GET("/search", productH.Search)
	products.GET("/:id", productH.Get, auth.OptionalAuth)
	products.POST("", productH.Create, auth.RequireAuth, RequireAdmin)
	products.PUT("/:id", productH.Update, auth.RequireAuth, RequireAdmin)
	products.DELETE("/:id", productH.Delete, auth.RequireAuth, RequireAdmin)
	products.POST("/:id/restock", productH.Restock, auth.RequireAuth, RequireAdmin)

	orders := api.Group("/orders", auth.RequireAuth)
	orders.POST("/create", orderH.Create)
	orders.POST("/verify", orderH.Verify)
	orders.GET("/my", orderH.ListMine)
	orders.GET("/admin/all", orderH.ListAll, RequireAdmin)
	orders.PUT("/admin/:id/status", orderH.UpdateStatus, RequireAdmin)
	orders.GET("/:id", orderH.Get)
	orders.POST("/:id/cancel", orderH.Cancel)

	notifications := api.Group("/notifications", auth.RequireAuth)
	notifications.GET("", notifH.List)
	notifications.PATCH("/:id/read", notifH.MarkRead)
	notifications.PATCH("/read-all", notifH.MarkAllRead)

	analytics := api.Group("/analytics", auth.RequireAuth, RequireAdmin)
	analytics.GET("/overview", analyticsH.Overview)
	analytics.GET("/top-products", analyticsH.TopProducts)
	analytics.GET("/revenue", analyticsH.Revenue)
	analytics.GET("/inventory", analyticsH.Inventory)

	users := api.Group("/users", auth.RequireAuth, RequireAdmin)
	users.GET("", userH.List)
	users.GET("/:id", userH.Get)
	users.PUT("/:id", userH.Update)
	users.PATCH("/:id/role", userH.SetRole)
	users.PATCH("/:id/block", userH.Block)
	users.PATCH("/:id/unblock", userH.Unblock)

	api.POST("/webhooks/gateway", webhookH.Gateway)

	if d.Hub != nil {
		e.GET("/ws", d.Hub.Serve)
	}
}
