package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_SetsLabels(t *testing.T) {
	router := gin.New()
	router.Use(Profiling(DefaultProfilingConfig()))

	var got map[string]string
	router.POST("/api/v1/batches/:id/cancel", func(c *gin.Context) {
		got = map[string]string{}
		pprof.ForLabels(c.Request.Context(), func(k, v string) bool {
			got[k] = v
			return true
		})
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/batches/b-9/cancel", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POST", got["method"])
	assert.Equal(t, "/api/v1/batches/:id/cancel", got["route"])
	assert.Equal(t, "batches", got["controller"])
}

func TestProfiling_SkipsHealth(t *testing.T) {
	router := gin.New()
	router.Use(Profiling(DefaultProfilingConfig()))

	labelled := false
	router.GET("/health", func(c *gin.Context) {
		_, labelled = pprof.Label(c.Request.Context(), "route")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.False(t, labelled)
}

func TestProfiling_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Profiling(ProfilingConfig{}))

	var ctx context.Context
	router.GET("/api/v1/orders", func(c *gin.Context) {
		ctx = c.Request.Context()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	_, ok := pprof.Label(ctx, "route")
	assert.False(t, ok)
}

func TestControllerFromRoute(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{"/api/v1/orders", "orders"},
		{"/api/v1/orders/:id/transition", "orders"},
		{"/api/v1/sync/gaps", "sync"},
		{"/health", "health"},
		{"/files/*path", "files"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, controllerFromRoute(tt.route))
		})
	}
}
