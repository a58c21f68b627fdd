package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/digvijay2003/contract-intelligence-api/internal/handlers"
	"github.com/digvijay2003/contract-intelligence-api/internal/middleware"
)

type RouterConfig struct {
	HealthHandler       *handlers.HealthHandler
	DocumentHandler     *handlers.DocumentHandler
	QueryHandler        *handlers.QueryHandler
	MetricsMiddleware   *middleware.MetricsMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
	MetricsHTTPHandler  http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Session-ID"},
		AllowCredentials: true,
	}))
	router.Use(cfg.MetricsMiddleware.Track())

	// ===============
	// || Public    ||
	// ===============
	router.GET("/", cfg.HealthHandler.Root)
	router.GET("/healthz", cfg.HealthHandler.HealthCheck)
	router.GET("/metrics", gin.WrapH(cfg.MetricsHTTPHandler))

	// ===============
	// || API       ||
	// ===============
	api := router.Group("/api")
	{
		api.POST("/documents", cfg.DocumentHandler.Upload)
		api.GET("/documents", cfg.DocumentHandler.List)
		api.GET("/documents/:id", cfg.DocumentHandler.Get)
		api.GET("/documents/:id/fields", cfg.DocumentHandler.GetFields)
		api.GET("/documents/:id/findings", cfg.DocumentHandler.GetFindings)
		api.GET("/documents/:id/chunks", cfg.DocumentHandler.GetChunks)
		api.POST("/documents/:id/reprocess", cfg.DocumentHandler.Reprocess)

		api.POST("/query", cfg.RateLimitMiddleware.Limit(), cfg.QueryHandler.Query)
		api.GET("/query/history", cfg.QueryHandler.History)
	}

	return router
}
