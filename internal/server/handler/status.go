package handler

import (
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
)

// StatusHandler serves the agent status for the dashboard.
type StatusHandler struct {
	agent  Agent
	mode   string
	config any
}

// NewStatusHandler creates a StatusHandler. config must already be redacted.
func NewStatusHandler(agent Agent, mode string, config any) *StatusHandler {
	return &StatusHandler{agent: agent, mode: mode, config: config}
}

type statusResponse struct {
	Mode   string              `json:"mode"`
	Status orchestrator.Status `json:"status"`
	Config any                 `json:"config,omitempty"`
}

// GetStatus responds with the cycle, breaker, portfolio and config.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:   h.mode,
		Status: h.agent.Status(),
		Config: h.config,
	})
}
