package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orderhub/backend/internal/application/event"
	"github.com/orderhub/backend/internal/interfaces/http/dto"
)

const healthCheckTimeout = 2 * time.Second

// Component health values
const (
	ComponentUp       = "up"
	ComponentDown     = "down"
	ComponentDegraded = "degraded"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// SystemHandler serves liveness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	checks    map[string]HealthCheck
	outbox    *event.OutboxService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
	}
}

// AddCheck registers a dependency probe reported by /health. A failing
// probe makes the endpoint answer 503.
func (h *SystemHandler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// SetOutbox reports dead signal entries as a degraded component
func (h *SystemHandler) SetOutbox(outbox *event.OutboxService) {
	h.outbox = outbox
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string            `json:"status"`
	Name       string            `json:"name"`
	Version    string            `json:"version"`
	GoVersion  string            `json:"go_version"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components"`
	DeadEvents int64             `json:"dead_events"`
}

// Health godoc
// @Summary      Liveness and dependency health
// @Tags         system
// @Produce      json
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:     ComponentUp,
		Name:       h.name,
		Version:    h.version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: make(map[string]string, len(h.checks)+1),
	}

	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Components[name] = ComponentDown
			resp.Status = ComponentDown
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = ComponentUp
	}

	if h.outbox != nil {
		stats, err := h.outbox.GetStats(ctx)
		switch {
		case err != nil:
			resp.Components["outbox"] = ComponentDown
		case stats.Dead > 0:
			resp.Components["outbox"] = ComponentDegraded
			resp.DeadEvents = stats.Dead
		default:
			resp.Components["outbox"] = ComponentUp
		}
		if resp.Status == ComponentUp && resp.Components["outbox"] != ComponentUp {
			resp.Status = ComponentDegraded
		}
	}

	c.JSON(code, dto.NewSuccessResponse(resp))
}
