package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency per route template. Unmatched
// routes are reported as "unmatched" to keep label cardinality bounded.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	if m == nil {
		m = prometheus.NewNoopAppMetrics()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
