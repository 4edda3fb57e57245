package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	agent Agent
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(agent Agent) *HealthHandler {
	return &HealthHandler{agent: agent}
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Loop      orchestrator.HealthStatus `json:"loop"`
}

// HealthCheck answers 200 while the trading loop is healthy and 503 when it
// is stuck or erroring repeatedly.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	hs := h.agent.Health()
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Loop:      hs,
	}
	code := http.StatusOK
	if !hs.Healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
