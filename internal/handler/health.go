package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cortexai/finops-insight/internal/errs"
	"github.com/cortexai/finops-insight/internal/models"
)

const version = "1.0.0"

// Pinger is implemented by the active data source
type Pinger interface {
	Backend() models.Backend
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health with a backend connectivity check
type HealthHandler struct {
	ds Pinger
}

func NewHealthHandler(ds Pinger) *HealthHandler {
	return &HealthHandler{ds: ds}
}

// Health reports degraded with 503 when the backend does not answer
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"server": "ok"}
	overallStatus := "healthy"

	// Use a short timeout for health checks so they don't block
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	backend := string(h.ds.Backend())
	if err := h.ds.Ping(ctx); err != nil {
		checks[backend] = "unavailable: " + errs.Message(err)
		overallStatus = "degraded"
	} else {
		checks[backend] = "ok"
	}

	statusCode := http.StatusOK
	if overallStatus == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	models.WriteJSON(w, statusCode, models.HealthResponse{
		Status:  overallStatus,
		Version: version,
		Backend: h.ds.Backend(),
		Checks:  checks,
	})
}
