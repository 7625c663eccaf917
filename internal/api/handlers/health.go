package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/health"
)

// HealthHandler serves liveness, readiness and component health.
type HealthHandler struct {
	manager *health.Manager
	version string
}

// NewHealthHandler creates a new HealthHandler. A nil manager reports
// healthy and ready.
func NewHealthHandler(manager *health.Manager, version string) *HealthHandler {
	return &HealthHandler{manager: manager, version: version}
}

// GetHealth returns the aggregate status of the registered checks.
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    string(health.StatusHealthy),
			Version:   h.version,
			Timestamp: time.Now(),
		})
		return
	}

	overall := h.manager.GetOverallStatus(c.Request.Context())
	resp := models.HealthResponse{
		Status:     string(overall.Status),
		Version:    h.version,
		Components: make([]models.ComponentHealth, 0, len(overall.Components)),
		Timestamp:  overall.Timestamp,
	}
	for _, r := range overall.Components {
		resp.Components = append(resp.Components, componentHealth(r))
	}
	sort.Slice(resp.Components, func(i, j int) bool {
		return resp.Components[i].Name < resp.Components[j].Name
	})

	c.JSON(healthStatusCode(overall.Status), resp)
}

// GetLiveness reports that the process is serving.
// GET /health/live
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, models.ProbeResponse{
		Status:    "alive",
		Timestamp: time.Now(),
	})
}

// GetReadiness reports whether the API can serve source writes. Degraded
// components do not block readiness.
// GET /health/ready
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	resp := models.ProbeResponse{Status: "ready", Timestamp: time.Now()}
	if h.manager == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	overall := h.manager.GetOverallStatus(c.Request.Context())
	for name, r := range overall.Components {
		if healthStatusCode(r.Status) != http.StatusOK {
			resp.Failing = append(resp.Failing, name)
		}
	}
	if len(resp.Failing) == 0 {
		c.JSON(http.StatusOK, resp)
		return
	}

	sort.Strings(resp.Failing)
	resp.Status = "not_ready"
	c.JSON(http.StatusServiceUnavailable, resp)
}

func componentHealth(r health.CheckResult) models.ComponentHealth {
	return models.ComponentHealth{
		Name:       r.Name,
		Status:     string(r.Status),
		Message:    r.Message,
		DurationMs: r.Duration.Milliseconds(),
		LastCheck:  r.LastCheck,
		Error:      r.Error,
	}
}

// healthStatusCode maps a status to an HTTP status. Degraded still serves.
func healthStatusCode(s health.Status) int {
	switch s {
	case health.StatusUnhealthy, health.StatusUnknown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}
