package handler

import (
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
)

// PositionHandler serves the open book.
type PositionHandler struct {
	agent Agent
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(agent Agent) *PositionHandler {
	return &PositionHandler{agent: agent}
}

type listPositionsResponse struct {
	Positions []orchestrator.PositionStatus `json:"positions"`
}

// ListPositions returns every open position valued at its last mark,
// optionally filtered by ?symbol=.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time filter")
		return
	}
	out := []orchestrator.PositionStatus{}
	for _, p := range h.agent.Positions() {
		if opts.Symbol == "" || p.Symbol == opts.Symbol {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}
