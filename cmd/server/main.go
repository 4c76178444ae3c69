package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autotab/api/internal/app"
	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/handlers"
	"github.com/autotab/api/internal/logging"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/autotab/api/docs" // Swagger docs
)

const version = "0.1.0"

// @title AutoTab API
// @version 0.1.0
// @description Upload a tabular CSV, train the best model automatically and download predictions and feature importance.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("AutoTab API starting...",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
	)

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "autotab-api", cfg.OTLPEndpoint)
	if err != nil {
		// Collector may be down; tracing is optional.
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	defer a.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sessions := middleware.NewSessions(cfg.JWTSecret, cfg.TokenTTL, a.Denylist, logger)
	router := handlers.NewRouter(handlers.RouterDeps{
		Store:         a.Store,
		Orchestrator:  a.Orchestrator,
		Files:         a.Files,
		Sessions:      sessions,
		Metrics:       a.Metrics,
		Health:        a.HealthDeps(),
		CORSOrigins:   cfg.CORSOrigins,
		RateLimit:     cfg.RateLimit,
		MaxUpload:     cfg.MaxUploadBytes,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})

	// Training runs inside the upload request, so writes get a long deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
