package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling labels CPU samples taken while serving a request with its method,
// route pattern and endpoint name, so Pyroscope can split profiles per endpoint.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || route == "/health" || route == "/metrics" {
			c.Next()
			return
		}
		labels := pyroscope.Labels(
			"method", c.Request.Method,
			"route", route,
			"endpoint", EndpointName(route),
		)
		pyroscope.TagWrapper(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// EndpointName derives a short label from a route pattern:
// "/functions/v1/verify-payment" is "verify-payment" and
// "/api/v1/wishlists/:id/items" is "wishlists".
func EndpointName(route string) string {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	for _, part := range parts {
		if part == "" || part == "api" || part == "functions" || isVersionSegment(part) {
			continue
		}
		if strings.HasPrefix(part, ":") || strings.HasPrefix(part, "*") {
			continue
		}
		return part
	}
	return ""
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
