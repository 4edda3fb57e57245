package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
)

// readOnlyAgent backs the HTTP API in server mode, where no loop runs. It
// reports the persisted risk state and can clear a halt for the next run.
type readOnlyAgent struct {
	store     domain.RiskStateStore
	totalDays int
	logger    *slog.Logger
	now       func() time.Time
}

func newReadOnlyAgent(store domain.RiskStateStore, totalDays int, logger *slog.Logger) *readOnlyAgent {
	return &readOnlyAgent{
		store:     store,
		totalDays: totalDays,
		logger:    logger.With(slog.String("component", "readonly_agent")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *readOnlyAgent) state(ctx context.Context) domain.RiskState {
	st, err := r.store.Load(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "risk state unavailable", slog.String("error", err.Error()))
		return domain.RiskState{}
	}
	return st
}

func (r *readOnlyAgent) Status() orchestrator.Status {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st := r.state(ctx)
	return orchestrator.Status{
		TotalDays: r.totalDays,
		Health:    r.Health(),
		Risk:      st,
		Portfolio: domain.Portfolio{TotalValue: st.CurrentValue},
	}
}

// Health is always healthy: there is no loop to be stuck.
func (r *readOnlyAgent) Health() orchestrator.HealthStatus {
	return orchestrator.HealthStatus{Healthy: true, ErrorRateOK: true}
}

func (r *readOnlyAgent) Positions() []orchestrator.PositionStatus {
	return []orchestrator.PositionStatus{}
}

// ResetHalt clears the persisted halt so the next live run starts unpaused
// with the peak reset to the current value.
func (r *readOnlyAgent) ResetHalt(ctx context.Context) domain.RiskState {
	st, err := r.store.Load(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "reset halt: load failed", slog.String("error", err.Error()))
		return domain.RiskState{}
	}
	st.Halted = false
	st.Level = domain.BreakerNone
	st.PausedLevel = domain.BreakerNone
	st.PausedUntil = nil
	st.PeakValue = st.CurrentValue
	st.UpdatedAt = r.now()
	if err := r.store.Save(ctx, st); err != nil {
		r.logger.ErrorContext(ctx, "reset halt: save failed", slog.String("error", err.Error()))
	}
	return st
}
