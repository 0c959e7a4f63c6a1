package http

import (
	"github.com/gin-gonic/gin"

	"github.com/cartlens/backend/config"
	"github.com/cartlens/backend/internal/infrastructure/metrics"
)

// SetupRouter creates and configures the Gin router. m may be nil, which
// leaves out request metrics and the /metrics endpoint.
func SetupRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	if m != nil {
		router.Use(m.Middleware())
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.POST("/scrape", handler.Scrape)

		products := v1.Group("/workspaces/:workspaceId/products")
		{
			products.GET("", handler.ListProducts)
			products.DELETE("/:id", handler.DeleteProduct)
			products.PUT("/:id/favorite", handler.SetFavorite)
		}
	}

	return router
}
