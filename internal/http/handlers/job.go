package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/http/response"
	"github.com/eddykim0118/kivo/internal/services"
)

type JobHandler struct {
	forecasts services.ForecastService
}

func NewJobHandler(forecasts services.ForecastService) *JobHandler {
	return &JobHandler{forecasts: forecasts}
}

type submitJobRequest struct {
	FileID uuid.UUID             `json:"file_id" binding:"required"`
	Config *forecast.ModelConfig `json:"config"`
}

// POST /api/jobs
func (h *JobHandler) SubmitJob(c *gin.Context) {
	// A partial config only overrides the fields it names.
	defaults := forecast.DefaultModelConfig()
	req := submitJobRequest{Config: &defaults}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cfg := forecast.DefaultModelConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	job, err := h.forecasts.SubmitJob(c.Request.Context(), req.FileID, cfg)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.forecasts.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/jobs/:id/result, GET /api/results/:id
func (h *JobHandler) GetResult(c *gin.Context) {
	result, err := h.forecasts.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": result})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.forecasts.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}
