package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/server/middleware"
)

// RiskHandler exposes the operator reset of a terminal breaker halt and the
// audit trail it writes to.
type RiskHandler struct {
	agent  Agent
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler. audit may be nil.
func NewRiskHandler(agent Agent, audit domain.AuditStore, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{agent: agent, audit: audit, logger: logHandler(logger, "risk")}
}

// ResetHalt clears the L4 latch and returns the new risk state.
// POST /api/risk/reset
func (h *RiskHandler) ResetHalt(w http.ResponseWriter, r *http.Request) {
	before := h.agent.Status().Risk
	state := h.agent.ResetHalt(r.Context())

	reqID := middleware.RequestID(r.Context())

	h.logger.WarnContext(r.Context(), "circuit breaker halt reset",
		slog.Bool("was_halted", before.Halted),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", reqID),
	)
	if h.audit != nil {
		if err := h.audit.Log(r.Context(), "risk.reset", map[string]any{
			"was_halted":  before.Halted,
			"remote_addr": r.RemoteAddr,
			"request_id":  reqID,
		}); err != nil {
			h.logger.ErrorContext(r.Context(), "audit log failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"risk": state})
}

// ListAudit returns audit entries newest first.
// GET /api/audit?event=&since=&until=&limit=&offset=
func (h *RiskHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time filter")
		return
	}
	opts.Event = strings.TrimSpace(r.URL.Query().Get("event"))

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "audit log unavailable")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
