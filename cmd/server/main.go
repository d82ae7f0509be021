package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sugarsphere/backend/internal/config"
	"github.com/sugarsphere/backend/internal/events"
	"github.com/sugarsphere/backend/internal/httpserver"
	"github.com/sugarsphere/backend/internal/logging"
	"github.com/sugarsphere/backend/internal/mail"
	"github.com/sugarsphere/backend/internal/payment"
	"github.com/sugarsphere/backend/internal/push"
	"github.com/sugarsphere/backend/internal/search"
	"github.com/sugarsphere/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)

	db, err := config.InitDB(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db init: %v", err)
	}

	producer, err := events.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("kafka producer: %v", err)
	}

	var indexer service.ProductIndexer
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		indexer = &search.Index{ES: esClient, Name: search.ProductIndex}
	}

	gateway := payment.NewClient(cfg.GatewayURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayWebhookSecret)
	hub := push.NewHub(cfg.JWTSecret, logger)
	mailer := &mail.Mailer{Producer: producer, ClientURL: cfg.ClientURL}

	deps := httpserver.Deps{
		DB:        db,
		JWTSecret: cfg.JWTSecret,

		Auth: &service.AuthService{
			DB: db, JWTSecret: cfg.JWTSecret, RefreshSecret: cfg.RefreshSecret,
			Producer: producer, Mailer: mailer,
		},
		Catalog:       &service.CatalogService{DB: db, Producer: producer, Indexer: indexer},
		Orders:        &service.OrderService{DB: db, Gateway: gateway, Producer: producer, Mailer: mailer, Push: hub},
		Notifications: &service.NotificationService{DB: db, Push: hub},
		Analytics:     &service.AnalyticsService{DB: db},
		Users:         &service.UserService{DB: db},

		Hub:      hub,
		Verifier: gateway,

		AllowedOrigins: []string{cfg.ClientURL},
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler(cfg.IsProduction())
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(logger))

	httpserver.Register(e, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	hub.Close()

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if err := producer.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
