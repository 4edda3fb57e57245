package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TradeHandler serves trade history. It reads Postgres when configured and
// the in-memory journal otherwise.
type TradeHandler struct {
	journal Journal
	store   domain.TradeStore
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler. store may be nil.
func NewTradeHandler(journal Journal, store domain.TradeStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{journal: journal, store: store, logger: logHandler(logger, "trades")}
}

type listTradesResponse struct {
	Trades []domain.TradeRecord `json:"trades"`
	Source string               `json:"source"`
}

// ListTrades returns trade records newest first.
// GET /api/trades?symbol=&since=&until=&limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time filter")
		return
	}

	if h.store != nil {
		trades, err := h.store.List(r.Context(), opts)
		if err == nil {
			if trades == nil {
				trades = []domain.TradeRecord{}
			}
			writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades, Source: "postgres"})
			return
		}
		h.logger.WarnContext(r.Context(), "trade store failed, using journal",
			slog.String("error", err.Error()),
		)
	}

	all := h.journal.Trades()
	filtered := make([]domain.TradeRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if inWindow(opts, all[i].Symbol, all[i].Timestamp) {
			filtered = append(filtered, all[i])
		}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: page(filtered, opts), Source: "journal"})
}
