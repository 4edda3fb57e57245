package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// journalDecisionWindow bounds how much of the in-memory history is searched.
const journalDecisionWindow = 1000

// DecisionHandler serves oracle decisions.
type DecisionHandler struct {
	journal Journal
	store   domain.DecisionStore
	logger  *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler. store may be nil.
func NewDecisionHandler(journal Journal, store domain.DecisionStore, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{journal: journal, store: store, logger: logHandler(logger, "decisions")}
}

// ListDecisions returns decisions newest first. The journal view carries the
// execution outcome and market context; the Postgres view does not.
// GET /api/decisions?symbol=&since=&until=&limit=&offset=
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time filter")
		return
	}

	if h.store != nil {
		ds, err := h.store.List(r.Context(), opts)
		if err == nil {
			if ds == nil {
				ds = []domain.Decision{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"decisions": ds, "source": "postgres"})
			return
		}
		h.logger.WarnContext(r.Context(), "decision store failed, using journal",
			slog.String("error", err.Error()),
		)
	}

	all := h.journal.Decisions(journalDecisionWindow)
	filtered := make([]tradelog.DecisionEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if inWindow(opts, all[i].Symbol, all[i].Timestamp) {
			filtered = append(filtered, all[i])
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": page(filtered, opts), "source": "journal"})
}
