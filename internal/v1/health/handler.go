package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/identity"
	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
)

const readinessTimeout = 2 * time.Second

// ProfileChecker is the slice of the REST client the readiness probe needs.
type ProfileChecker interface {
	Me(ctx context.Context) (identity.User, error)
}

// Handler serves the ops health endpoints.
type Handler struct {
	api ProfileChecker
}

// NewHandler creates a health check handler over the REST backend.
func NewHandler(api ProfileChecker) *Handler {
	return &Handler{api: api}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only when the REST backend answers the profile call in time.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	status := "ready"
	statusCode := http.StatusOK

	if h.api == nil {
		checks["rest_api"] = "unhealthy"
	} else if _, err := h.api.Me(ctx); err != nil {
		logging.Error(ctx, "REST backend health check failed", zap.Error(err))
		checks["rest_api"] = "unhealthy"
	} else {
		checks["rest_api"] = "healthy"
	}

	if checks["rest_api"] != "healthy" {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
