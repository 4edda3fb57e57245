package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Fallback modes.
const (
	FallbackHold  = "hold"
	FallbackRules = "rules"
)

// Fallback decides when the oracle is unavailable. In rules mode it closes a
// symbol whose worst position is losing more than LossPct; otherwise it holds.
type Fallback struct {
	Mode    string
	LossPct float64
}

// Decide returns the fallback decision for symbol given the leveraged PnL of
// its open positions.
func (f Fallback) Decide(symbol string, positionPnL []float64) domain.Decision {
	if f.Mode == FallbackRules {
		for _, pnl := range positionPnL {
			if pnl < -f.LossPct {
				return domain.Decision{
					Symbol:            symbol,
					Action:            domain.ActionClose,
					Confidence:        80,
					Leverage:          1,
					EntryReason:       "Fallback: Closing losing position",
					StopLossPercent:   3,
					TakeProfitPercent: 10,
					Urgency:           domain.UrgencyHigh,
					Source:            domain.SourceFallback,
					DecidedAt:         time.Now().UTC(),
				}
			}
		}
	}
	d := domain.HoldDecision(symbol, "Fallback: API unavailable, avoiding new positions")
	d.Source = domain.SourceFallback
	return d
}

// WithFallback wraps an oracle so transport failures are answered by a
// Fallback. Validation failures still yield the oracle's own HOLD.
type WithFallback struct {
	Oracle   domain.DecisionOracle
	Fallback Fallback
	// PnL reports the leveraged PnL of open positions on a symbol.
	PnL    func(symbol string) []float64
	Logger *slog.Logger
}

// Decide implements domain.DecisionOracle.
func (w *WithFallback) Decide(ctx context.Context, symbol, prompt string, day int) (domain.Decision, error) {
	d, err := w.Oracle.Decide(ctx, symbol, prompt, day)
	if err == nil || domain.IsValidation(err) {
		return d, err
	}
	var pnl []float64
	if w.PnL != nil {
		pnl = w.PnL(symbol)
	}
	fd := w.Fallback.Decide(symbol, pnl)
	if w.Logger != nil {
		w.Logger.Warn("using fallback decision",
			slog.String("symbol", symbol),
			slog.String("action", string(fd.Action)),
			slog.String("error", err.Error()),
		)
	}
	return fd, err
}
