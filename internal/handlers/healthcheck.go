package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
)

type HealthHandler struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewHealthHandler(log *logger.Logger, db *gorm.DB) *HealthHandler {
	return &HealthHandler{log: log.With("handler", "HealthHandler"), db: db}
}

func (h *HealthHandler) Root(c *gin.Context) {
	RespondOK(c, gin.H{
		"message": "Contract Intelligence API",
		"version": "1.0.0",
	})
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			h.log.Error("Health check failed", "error", err)
			RespondError(c, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}
	RespondOK(c, gin.H{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().Unix(),
	})
}
