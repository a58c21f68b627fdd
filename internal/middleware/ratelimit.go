package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/services"
)

type RateLimitMiddleware struct {
	log     *logger.Logger
	limiter *services.RateLimiter
}

func NewRateLimitMiddleware(log *logger.Logger, limiter *services.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{log: log.With("Middleware", "RateLimitMiddleware"), limiter: limiter}
}

// Limit gates a route through the ip/session quota counters. When the
// limiter backend itself errors the request is admitted; quota
// enforcement must not take the API down with it.
func (rm *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		sessionID := c.GetHeader("X-Session-ID")

		rejection, err := rm.limiter.Check(c.Request.Context(), ip, sessionID)
		if err != nil {
			rm.log.Warn("Rate limiter unavailable; admitting request", "error", err)
			c.Next()
			return
		}
		if rejection != nil {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rejection.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message":             rejection.Error(),
					"code":                "rate_limited",
					"dimension":           rejection.Dimension,
					"window":              rejection.Window,
					"retry_after_seconds": int(rejection.RetryAfter.Seconds()) + 1,
				},
			})
			return
		}
		c.Next()
	}
}
