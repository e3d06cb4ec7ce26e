package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/service"
)

// Metrics observes every request's duration and status. Requests that
// match no registered route are collapsed under one label so 404 noise
// cannot blow up the path cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
