// Package handler serves the agent's read-mostly HTTP API: health, status,
// open positions, the trade and decision journals, performance and the
// operator circuit-breaker reset.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// Agent is the part of the orchestrator the API reads.
type Agent interface {
	Status() orchestrator.Status
	Health() orchestrator.HealthStatus
	Positions() []orchestrator.PositionStatus
	ResetHalt(ctx context.Context) domain.RiskState
}

// Journal is the in-memory run history.
type Journal interface {
	Trades() []domain.TradeRecord
	Decisions(n int) []tradelog.DecisionEntry
	Snapshots(n int) []domain.PerformanceSnapshot
	Errors(n int) []tradelog.ErrorEntry
	Metrics() tradelog.Metrics
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts pagination and filters from the query string.
// Defaults: limit=50 (max 500), offset=0. since/until are RFC 3339.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{
		Limit:  limit,
		Offset: offset,
		Symbol: strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
	}
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.ListOpts{}, err
		}
		*dst = &t
	}
	return opts, nil
}

// inWindow reports whether a record at ts passes the symbol and time filters.
func inWindow(opts domain.ListOpts, symbol string, ts time.Time) bool {
	if opts.Symbol != "" && opts.Symbol != symbol {
		return false
	}
	if opts.Since != nil && ts.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && !ts.Before(*opts.Until) {
		return false
	}
	return true
}

// page applies offset and limit to an already filtered, newest-first slice.
func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
