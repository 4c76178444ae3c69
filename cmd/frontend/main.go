package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autotab/api/internal/config"
	"github.com/autotab/api/internal/frontend"
	"github.com/autotab/api/internal/logging"
	"github.com/autotab/api/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	breaker := middleware.NewCircuitBreaker(middleware.BreakerOptions{})
	breaker.OnStateChange = func(from, to middleware.CircuitState) {
		logger.Warn("API circuit state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	api := frontend.NewClient(cfg.APIURL, breaker)
	server := frontend.NewServer(api, cfg.SecureCookies, cfg.TokenTTL, logger.Named("frontend"))

	srv := &http.Server{
		Addr:         ":" + cfg.FrontendPort,
		Handler:      server.Router(),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting front-end",
			zap.String("port", cfg.FrontendPort),
			zap.String("api_url", cfg.APIURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start front-end", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("front-end forced to shutdown", zap.Error(err))
	}
	logger.Info("front-end exited gracefully")
}
