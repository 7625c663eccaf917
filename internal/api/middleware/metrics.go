package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/idbroker/internal/metrics"
)

// unmatchedRoute labels requests that matched no route.
const unmatchedRoute = "/not_found"

// Metrics records request count, latency and payload sizes per route
// template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		if c.Request.ContentLength > 0 {
			metrics.APIRequestSize.WithLabelValues(route, method).Observe(float64(c.Request.ContentLength))
		}

		c.Next()

		metrics.APIRequestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			metrics.APIResponseSize.WithLabelValues(route, method).Observe(float64(size))
		}
	}
}
