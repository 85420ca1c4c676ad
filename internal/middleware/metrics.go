package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mlibrary/internal/metrics"
)

// Metrics records one observation per request, labelled by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
