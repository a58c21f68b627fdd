package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
)

type MetricsMiddleware struct {
	recorder metrics.Recorder
}

func NewMetricsMiddleware(recorder metrics.Recorder) *MetricsMiddleware {
	return &MetricsMiddleware{recorder: recorder}
}

// Track records per-request counters and latency. The route template
// (c.FullPath) is used rather than the raw URL so path parameters do
// not explode the label cardinality.
func (mm *MetricsMiddleware) Track() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		mm.recorder.HTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(started).Seconds(),
		)
	}
}
