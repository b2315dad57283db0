package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/backend/pkg/metrics"
)

// Metrics 请求计数与耗时指标中间件
// 以路由模板作为标签，未匹配的路由统一记为 unmatched
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
