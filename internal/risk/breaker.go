package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// BreakerConfig holds drawdown thresholds and per-level overrides.
type BreakerConfig struct {
	L1Threshold        float64
	L2Threshold        float64
	L3Threshold        float64
	L4Threshold        float64
	L2Pause            time.Duration
	L3Pause            time.Duration
	L1SizeCap          float64
	L2SizeCap          float64
	L3SizeCap          float64
	ReducedMaxLeverage int
	DailyLossLimit     float64
}

// CircuitBreaker is the staged drawdown state machine. It owns the process
// RiskState; the cycle loop feeds it portfolio values and the HTTP API reads
// it, so access is serialized.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu    sync.Mutex
	state domain.RiskState
}

// NewCircuitBreaker restores a breaker from a persisted state (zero value for
// a fresh start).
func NewCircuitBreaker(cfg BreakerConfig, initial domain.RiskState, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:    cfg,
		state:  initial,
		logger: logger.With(slog.String("component", "circuit_breaker")),
	}
}

// Update records the current portfolio value, raising the peak and resetting
// daily accounting at UTC day rollover.
func (b *CircuitBreaker) Update(value float64, now time.Time) domain.RiskState {
	b.mu.Lock()
	defer b.mu.Unlock()

	day := now.UTC().Format(time.DateOnly)
	if b.state.LastResetDate != day {
		if b.state.LastResetDate != "" {
			b.logger.Info("daily risk reset",
				slog.String("previous_day", b.state.LastResetDate),
				slog.Int("trades", b.state.TradesToday),
			)
		}
		b.state.LastResetDate = day
		b.state.DailyStartValue = value
		b.state.TradesToday = 0
	}
	if value > b.state.PeakValue {
		b.state.PeakValue = value
	}
	b.state.CurrentValue = value
	b.state.UpdatedAt = now.UTC()
	return b.state
}

// RecordTrade increments the daily trade counter.
func (b *CircuitBreaker) RecordTrade() {
	b.mu.Lock()
	b.state.TradesToday++
	b.mu.Unlock()
}

// State returns a copy of the current risk state.
func (b *CircuitBreaker) State() domain.RiskState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	if s.PausedUntil != nil {
		t := *s.PausedUntil
		s.PausedUntil = &t
	}
	return s
}

// ResetHalt clears a terminal halt and re-bases the peak on the current
// value. It is the only way out of L4.
func (b *CircuitBreaker) ResetHalt(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger.Warn("terminal halt reset",
		slog.Float64("old_peak", b.state.PeakValue),
		slog.Float64("new_peak", b.state.CurrentValue),
	)
	b.state.Halted = false
	b.state.PeakValue = b.state.CurrentValue
	b.state.Level = domain.BreakerNone
	b.state.PausedLevel = domain.BreakerNone
	b.state.PausedUntil = nil
	b.state.UpdatedAt = now.UTC()
}

func (b *CircuitBreaker) levelFor(dd float64) domain.BreakerLevel {
	switch {
	case dd >= b.cfg.L4Threshold:
		return domain.BreakerL4
	case dd >= b.cfg.L3Threshold:
		return domain.BreakerL3
	case dd >= b.cfg.L2Threshold:
		return domain.BreakerL2
	case dd >= b.cfg.L1Threshold:
		return domain.BreakerL1
	default:
		return domain.BreakerNone
	}
}

// Evaluate re-derives the breaker level from the current drawdown and
// returns whether new entries are allowed.
func (b *CircuitBreaker) Evaluate(now time.Time) domain.BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	dd := b.state.Drawdown()
	level := b.levelFor(dd)
	prev := b.state.Level

	if level == domain.BreakerL4 || b.state.Halted {
		b.state.Halted = true
		b.state.Level = domain.BreakerL4
		if prev != domain.BreakerL4 {
			b.logger.Error("terminal circuit breaker tripped", slog.Float64("drawdown", dd))
		}
		return domain.BreakerStatus{
			Level:    domain.BreakerL4,
			CanTrade: false,
			Terminal: true,
			Drawdown: dd,
			Reason: fmt.Sprintf("EMERGENCY STOP: Drawdown %.1f%% ≥ %.0f%% - trading halted until manual reset",
				dd*100, b.cfg.L4Threshold*100),
		}
	}

	b.state.Level = level
	if level != prev {
		b.logger.Warn("circuit breaker level changed",
			slog.String("from", prev.String()),
			slog.String("to", level.String()),
			slog.Float64("drawdown", dd),
		)
	}

	// Full recovery re-arms the pauses.
	if level == domain.BreakerNone {
		b.state.PausedLevel = domain.BreakerNone
		b.state.PausedUntil = nil
	}

	if level >= domain.BreakerL2 && level > b.state.PausedLevel {
		pause := b.cfg.L2Pause
		if level == domain.BreakerL3 {
			pause = b.cfg.L3Pause
		}
		until := now.Add(pause).UTC()
		b.state.PausedUntil = &until
		b.state.PausedLevel = level
		b.logger.Warn("trading paused",
			slog.String("level", level.String()),
			slog.Time("until", until),
		)
	}

	st := domain.BreakerStatus{Level: level, CanTrade: true, Drawdown: dd}

	if b.state.PausedUntil != nil && now.Before(*b.state.PausedUntil) {
		until := *b.state.PausedUntil
		hours := until.Sub(now).Hours()
		st.CanTrade = false
		st.ResumeAt = &until
		st.Reason = fmt.Sprintf("%s; circuit breaker active for %.1f more hours", b.levelMessage(level, dd), hours)
		b.applyOverrides(&st)
		return st
	}

	if limit := b.cfg.DailyLossLimit; limit > 0 {
		if loss := b.state.DailyLoss(); loss >= limit {
			y, m, d := now.UTC().Date()
			resume := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
			st.CanTrade = false
			st.ResumeAt = &resume
			st.Reason = fmt.Sprintf("DAILY LOSS LIMIT: down %.1f%% today (limit %.0f%%) - trading resumes at next UTC day",
				loss*100, limit*100)
			b.applyOverrides(&st)
			return st
		}
	}

	st.Reason = b.levelMessage(level, dd)
	b.applyOverrides(&st)
	return st
}

func (b *CircuitBreaker) applyOverrides(st *domain.BreakerStatus) {
	switch st.Level {
	case domain.BreakerL1:
		st.SizeCap = b.cfg.L1SizeCap
		st.MaxLeverage = b.cfg.ReducedMaxLeverage
	case domain.BreakerL2:
		st.SizeCap = b.cfg.L2SizeCap
		st.MaxLeverage = b.cfg.ReducedMaxLeverage
	case domain.BreakerL3:
		st.SizeCap = b.cfg.L3SizeCap
		st.MaxLeverage = b.cfg.ReducedMaxLeverage
	case domain.BreakerL4:
		st.MaxLeverage = 1
	}
}

func (b *CircuitBreaker) levelMessage(level domain.BreakerLevel, dd float64) string {
	switch level {
	case domain.BreakerL3:
		return fmt.Sprintf("CRITICAL: Drawdown %.1f%% ≥ %.0f%% - extreme caution, %.0fh trading pause on entry",
			dd*100, b.cfg.L3Threshold*100, b.cfg.L3Pause.Hours())
	case domain.BreakerL2:
		return fmt.Sprintf("DEFENSIVE MODE: Drawdown %.1f%% ≥ %.0f%% - %.0fh trading pause on entry",
			dd*100, b.cfg.L2Threshold*100, b.cfg.L2Pause.Hours())
	case domain.BreakerL1:
		return fmt.Sprintf("WARNING: Drawdown %.1f%% ≥ %.0f%% - risk reduction active",
			dd*100, b.cfg.L1Threshold*100)
	default:
		return "OK"
	}
}
