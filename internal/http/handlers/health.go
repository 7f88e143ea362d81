package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eddykim0118/kivo/internal/services"
)

type HealthHandler struct {
	health services.HealthService
}

func NewHealthHandler(health services.HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/health
func (h *HealthHandler) APIHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": services.HealthHealthy})
}

// GET /api/services/health
func (h *HealthHandler) ServicesHealth(c *gin.Context) {
	if h.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": services.HealthHealthy})
		return
	}
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status != services.HealthHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
