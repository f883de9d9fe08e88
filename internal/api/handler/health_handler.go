package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/job-collector/internal/api/dto"
)

// Health handles GET /health
// 200 when the backend answers and has the model loaded, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.checker.Health(c.Request.Context())

	resp := dto.HealthResponse{
		Status:           "healthy",
		Backend:          status.Backend,
		Model:            status.Model,
		BackendReachable: status.Reachable,
		ModelAvailable:   status.ModelAvailable,
		Error:            status.Error,
	}
	if h.submitter != nil {
		resp.QueueDepth = h.submitter.QueueDepth()
	}

	code := http.StatusOK
	if !status.Reachable || !status.ModelAvailable {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
