package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, raw any) HealthResponse {
	t.Helper()
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(b, &h))
	return h
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("all checks up", func(t *testing.T) {
		h := NewSystemHandler("orderhub", "1.2.3")
		h.AddCheck("database", func(context.Context) error { return nil })

		c, w := newTestContext(http.MethodGet, "/health")
		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		health := decodeHealth(t, decodeResponse(t, w).Data)
		assert.Equal(t, ComponentUp, health.Status)
		assert.Equal(t, "1.2.3", health.Version)
		assert.Equal(t, ComponentUp, health.Components["database"])
	})

	t.Run("failing check answers 503", func(t *testing.T) {
		h := NewSystemHandler("orderhub", "1.2.3")
		h.AddCheck("database", func(context.Context) error { return nil })
		h.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

		c, w := newTestContext(http.MethodGet, "/health")
		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		health := decodeHealth(t, decodeResponse(t, w).Data)
		assert.Equal(t, ComponentDown, health.Status)
		assert.Equal(t, ComponentDown, health.Components["redis"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
