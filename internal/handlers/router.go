package handlers

import (
	"github.com/autotab/api/internal/artifact"
	"github.com/autotab/api/internal/metrics"
	"github.com/autotab/api/internal/middleware"
	"github.com/autotab/api/internal/registry"
	"github.com/autotab/api/internal/training"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// RouterDeps is everything the HTTP API is built from. Metrics and Health
// are optional.
type RouterDeps struct {
	Store         registry.Store
	Orchestrator  *training.Orchestrator
	Files         *artifact.Store
	Sessions      *middleware.Sessions
	Metrics       *metrics.Metrics
	Health        map[string]Pinger
	CORSOrigins   []string
	RateLimit     int
	MaxUpload     int64
	SecureCookies bool
	Logger        *zap.Logger
}

// NewRouter wires the API routes.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(middleware.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware())
		router.GET("/metrics", d.Metrics.Handler())
	}

	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	healthHandler := NewHealthHandler(d.Health)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)

	authHandler := NewAuthHandler(d.Store, d.Sessions, d.SecureCookies, d.Logger)
	datasetHandler := NewDatasetHandler(d.Orchestrator, d.Files, d.MaxUpload, d.Logger)
	modelHandler := NewModelHandler(d.Store, d.Orchestrator, d.Files, d.MaxUpload, d.Logger)

	limiter := middleware.PerMinute(d.RateLimit)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.RateLimitMiddleware(limiter))
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", d.Sessions.Auth(), authHandler.Logout)
		}

		protected := v1.Group("")
		protected.Use(d.Sessions.Auth())
		protected.Use(middleware.RateLimitMiddleware(limiter))
		{
			protected.GET("/user/me", authHandler.GetCurrentUser)

			protected.POST("/datasets", datasetHandler.Upload)
			protected.GET("/predictions/latest", datasetHandler.LatestPredictions)
			protected.GET("/feature-importance/latest", datasetHandler.LatestImportance)

			m := protected.Group("/models")
			{
				m.GET("", modelHandler.List)
				m.GET("/:id", modelHandler.Get)
				m.GET("/:id/download", modelHandler.Download)
				m.POST("/:id/predict", modelHandler.Predict)
			}
		}
	}
	return router
}
