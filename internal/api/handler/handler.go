package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rcss-tournament/team-builder/internal/state"
)

// Dependencies holds all dependencies needed by HTTP handlers
type Dependencies struct {
	Logger *slog.Logger
	State  *state.Manager
}

// StatusHandler serves the HTTP health and status surface
type StatusHandler struct {
	logger *slog.Logger
	state  *state.Manager
}

// NewStatusHandler creates a new StatusHandler instance
func NewStatusHandler(deps *Dependencies) *StatusHandler {
	return &StatusHandler{
		logger: deps.Logger,
		state:  deps.State,
	}
}

// HealthCheck handles GET /health-check
func (h *StatusHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "OK",
	})
}

// Status handles GET /status with the same snapshot the status command returns
func (h *StatusHandler) Status(c *gin.Context) {
	jobs := h.state.All()
	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, gin.H{
			"build_id": job.BuildID,
			"status":   string(job.Status),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs": out,
	})
}
