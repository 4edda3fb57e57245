// Package exitpolicy scores open positions against live signals and returns
// a graduated exit instruction.
package exitpolicy

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Config holds weights and thresholds. All PnL values are leveraged percent.
type Config struct {
	ActionThreshold     float64
	FullThreshold       float64
	EmergencyLossPct    float64
	ProfitProtectPnLPct float64
	ProfitProtectWeight float64
	ReversalWeight      float64
	RegimeWeight        float64
	ExhaustionWeight    float64
	LossWeight          float64
	LossThresholdPct    float64
	OverboughtRSI       float64
	OversoldRSI         float64
	ExhaustionHighRSI   float64
	ExhaustionLowRSI    float64
}

// Policy is a pure evaluator.
type Policy struct {
	cfg Config
}

// New creates a Policy.
func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Evaluate scores one position at the signal price.
func (p *Policy) Evaluate(pos domain.Position, sig domain.MarketSignals) domain.ExitSignal {
	pnl := pos.PnLPercent(sig.Price)

	if pnl < p.cfg.EmergencyLossPct {
		return domain.ExitSignal{
			Action:     domain.ExitFull,
			Confidence: 100,
			Reasons:    []string{fmt.Sprintf("emergency: pnl %.2f%% below %.1f%%", pnl, p.cfg.EmergencyLossPct)},
		}
	}

	var (
		score         float64
		reasons       []string
		profitProtect bool
	)
	long := pos.Side == domain.SideLong

	// (a) profit protection at an overbought/oversold extreme
	if pnl >= p.cfg.ProfitProtectPnLPct {
		extreme := false
		if long {
			extreme = sig.RSI >= p.cfg.OverboughtRSI || sig.BollingerPosition >= 90
		} else {
			extreme = sig.RSI <= p.cfg.OversoldRSI || sig.BollingerPosition <= 10
		}
		if extreme {
			score += p.cfg.ProfitProtectWeight
			profitProtect = true
			reasons = append(reasons, fmt.Sprintf("profit protection: pnl %.2f%% at rsi %.0f, bb %.0f",
				pnl, sig.RSI, sig.BollingerPosition))
		}
	}

	// (b) trend reversal against the position
	if long && sig.MACDDiff < 0 && sig.EMA21 > 0 && sig.Price < sig.EMA21 {
		score += p.cfg.ReversalWeight
		reasons = append(reasons, "reversal: macd bearish and price below ema21")
	}
	if !long && sig.MACDDiff > 0 && sig.EMA21 > 0 && sig.Price > sig.EMA21 {
		score += p.cfg.ReversalWeight
		reasons = append(reasons, "reversal: macd bullish and price above ema21")
	}
	if sig.Regime.OpposesSide(pos.Side) {
		score += p.cfg.RegimeWeight
		reasons = append(reasons, fmt.Sprintf("regime %s opposes %s", sig.Regime, pos.Side))
	}

	// (c) momentum exhaustion
	if long && sig.RSI >= p.cfg.ExhaustionHighRSI {
		score += p.cfg.ExhaustionWeight
		reasons = append(reasons, fmt.Sprintf("exhaustion: rsi %.0f", sig.RSI))
	}
	if !long && sig.RSI > 0 && sig.RSI <= p.cfg.ExhaustionLowRSI {
		score += p.cfg.ExhaustionWeight
		reasons = append(reasons, fmt.Sprintf("exhaustion: rsi %.0f", sig.RSI))
	}

	// (d) loss beyond the tightening threshold
	if pnl < p.cfg.LossThresholdPct {
		score += p.cfg.LossWeight
		reasons = append(reasons, fmt.Sprintf("loss: pnl %.2f%% below %.1f%%", pnl, p.cfg.LossThresholdPct))
	}

	out := domain.ExitSignal{Confidence: math.Min(score, 100), Reasons: reasons, Action: domain.ExitNone}
	switch {
	case score >= p.cfg.FullThreshold:
		out.Action = domain.ExitFull
	case score >= p.cfg.ActionThreshold && profitProtect:
		out.Action = domain.ExitPartial60
	case score >= p.cfg.ActionThreshold:
		out.Action = domain.ExitPartial40
	}
	return out
}

// SelectWorst returns the position with the lowest PnL% at mark. Only this
// position is evaluated per symbol each cycle; its siblings wait for the
// next cycle or for their own stops.
func SelectWorst(positions []domain.Position, mark float64) (domain.Position, bool) {
	if len(positions) == 0 {
		return domain.Position{}, false
	}
	worst := positions[0]
	for _, p := range positions[1:] {
		if p.PnLPercent(mark) < worst.PnLPercent(mark) {
			worst = p
		}
	}
	return worst, true
}
