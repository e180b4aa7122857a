package middleware

import (
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orderhub/backend/internal/infrastructure/telemetry"
)

// Pyroscope label keys. Values use route patterns to keep cardinality low.
const (
	profilingLabelRoute      = "route"
	profilingLabelMethod     = "method"
	profilingLabelController = "controller"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// DefaultProfilingConfig skips health and metrics scrapes.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// Profiling attaches route, method and controller labels to the request
// context so CPU profiles can be sliced per endpoint.
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}

		telemetry.WithProfilingLabels(c.Request.Context(), extractProfilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func extractProfilingLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 3)
	if m := c.Request.Method; m != "" {
		labels[profilingLabelMethod] = m
	}
	route := c.FullPath()
	if route != "" {
		labels[profilingLabelRoute] = route
	}
	if controller := controllerFromRoute(route); controller != "" {
		labels[profilingLabelController] = controller
	}
	return labels
}

// controllerFromRoute returns the first resource segment after the API
// version, e.g. "/api/v1/batches/:id/cancel" -> "batches".
func controllerFromRoute(route string) string {
	parts := strings.Split(strings.Trim(route, "/"), "/")
	for i, p := range parts {
		if p == "" || p == "api" || strings.HasPrefix(p, ":") || strings.HasPrefix(p, "*") {
			continue
		}
		if len(p) > 1 && p[0] == 'v' && p[1] >= '0' && p[1] <= '9' && i < len(parts)-1 {
			continue
		}
		return p
	}
	return ""
}
