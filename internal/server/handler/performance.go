package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

const (
	recentSnapshots = 200
	recentErrors    = 20
)

// PerformanceHandler serves run metrics and the equity curve.
type PerformanceHandler struct {
	journal   Journal
	snapshots domain.SnapshotStore
	logger    *slog.Logger
}

// NewPerformanceHandler creates a PerformanceHandler. snapshots may be nil,
// in which case the curve comes from the journal.
func NewPerformanceHandler(journal Journal, snapshots domain.SnapshotStore, logger *slog.Logger) *PerformanceHandler {
	return &PerformanceHandler{journal: journal, snapshots: snapshots, logger: logHandler(logger, "performance")}
}

type performanceResponse struct {
	Metrics   tradelog.Metrics             `json:"metrics"`
	Snapshots []domain.PerformanceSnapshot `json:"snapshots"`
	Errors    []tradelog.ErrorEntry        `json:"recent_errors"`
}

// GetPerformance returns metrics, the equity curve since ?since= and the
// latest errors.
// GET /api/performance
func (h *PerformanceHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time filter")
		return
	}

	var snaps []domain.PerformanceSnapshot
	if h.snapshots != nil {
		since := time.Time{}
		if opts.Since != nil {
			since = *opts.Since
		}
		snaps, err = h.snapshots.ListSince(r.Context(), since, recentSnapshots)
		if err != nil {
			h.logger.WarnContext(r.Context(), "snapshot store failed, using journal",
				slog.String("error", err.Error()),
			)
			snaps = nil
		}
	}
	if snaps == nil {
		for _, s := range h.journal.Snapshots(recentSnapshots) {
			if inWindow(domain.ListOpts{Since: opts.Since, Until: opts.Until}, "", s.Timestamp) {
				snaps = append(snaps, s)
			}
		}
	}
	if snaps == nil {
		snaps = []domain.PerformanceSnapshot{}
	}

	errs := h.journal.Errors(recentErrors)
	if errs == nil {
		errs = []tradelog.ErrorEntry{}
	}
	writeJSON(w, http.StatusOK, performanceResponse{
		Metrics:   h.journal.Metrics(),
		Snapshots: snaps,
		Errors:    errs,
	})
}
