// Package risk sizes entries and vetoes trades that would breach portfolio
// limits or the drawdown circuit breaker.
package risk

import (
	"fmt"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Check names used in rejections.
const (
	CheckBreaker       = "circuit_breaker"
	CheckAction        = "action"
	CheckSize          = "position_size"
	CheckLeverage      = "leverage"
	CheckOpenPositions = "max_open_positions"
	CheckSymbolCap     = "max_positions_per_symbol"
	CheckPyramidPnL    = "pyramid_pnl"
	CheckPyramidConf   = "pyramid_confidence"
	CheckPyramidSide   = "pyramid_side"
	CheckCorrelation   = "correlated_positions"
	CheckPortfolioRisk = "portfolio_risk"
	CheckConfidence    = "min_confidence"
	CheckMargin        = "margin"
	CheckStopLoss      = "stop_loss"
	CheckTakeProfit    = "take_profit"
)

// GateConfig holds every RiskGate limit.
type GateConfig struct {
	Sizing                 SizingConfig
	MaxOpenPositions       int
	MaxPositionsPerSymbol  int
	MaxCorrelatedPositions int
	CorrelationGroups      [][]string
	MaxPortfolioRisk       float64
	MinConfidence          float64
	VolatileMinConfidence  float64
	PyramidMinConfidence   float64
	MinStopLossPercent     float64
	MaxStopLossPercent     float64
	MinTakeProfitPercent   float64
}

// Request is everything RiskGate needs to judge one entry.
type Request struct {
	Decision        domain.Decision
	Symbol          string
	Regime          domain.Regime
	Portfolio       domain.Portfolio
	SymbolPositions []domain.Position
	AllPositions    []domain.Position
	Marks           map[string]float64
	Breaker         domain.BreakerStatus
}

// Verdict is the RiskGate outcome. Err is a *domain.RiskRejection or a
// *domain.CircuitBreakerHalt when Approved is false.
type Verdict struct {
	Approved    bool
	SizeDollars float64
	Leverage    int
	Reason      string
	Err         error
}

// Gate is the pure RiskGate. It performs no I/O.
type Gate struct {
	cfg   GateConfig
	group map[string]int
}

// NewGate creates a Gate from its limits.
func NewGate(cfg GateConfig) *Gate {
	group := make(map[string]int)
	for i, g := range cfg.CorrelationGroups {
		for _, s := range g {
			group[s] = i
		}
	}
	return &Gate{cfg: cfg, group: group}
}

const epsilon = 1e-9

func reject(check, format string, args ...any) Verdict {
	reason := fmt.Sprintf(format, args...)
	return Verdict{
		Reason: reason,
		Err:    &domain.RiskRejection{Check: check, Reason: reason},
	}
}

// SizeAndValidate sizes the entry and runs the ordered checks. The first
// failure wins.
func (g *Gate) SizeAndValidate(req Request) Verdict {
	d := req.Decision
	side, ok := d.Action.Side()
	if !ok {
		return reject(CheckAction, "action %s is not an entry", d.Action)
	}

	balance := req.Portfolio.TotalValue
	size := g.cfg.Sizing.Size(d.Confidence, balance, req.Regime, d.Strategy, req.Breaker.SizeCap)
	lev := g.cfg.Sizing.Leverage(d.Confidence, req.Regime, req.Breaker.MaxLeverage)

	// 1. circuit breaker
	if !req.Breaker.CanTrade {
		return Verdict{Reason: req.Breaker.Reason, Err: req.Breaker.Halt()}
	}

	// 2. size
	if balance <= 0 || size <= 0 {
		return reject(CheckSize, "no balance to size against (%.2f)", balance)
	}
	if frac := size / balance; frac > g.cfg.Sizing.MaxFraction+epsilon {
		return reject(CheckSize, "position size %.1f%% exceeds max %.1f%%", frac*100, g.cfg.Sizing.MaxFraction*100)
	}

	// 3. leverage
	if lev > g.cfg.Sizing.MaxLeverage {
		return reject(CheckLeverage, "leverage %dx exceeds max %dx", lev, g.cfg.Sizing.MaxLeverage)
	}

	// 4. total open positions
	if n := len(req.AllPositions); n >= g.cfg.MaxOpenPositions {
		return reject(CheckOpenPositions, "max open positions reached (%d/%d)", n, g.cfg.MaxOpenPositions)
	}

	// 5. per-symbol cap
	if n := len(req.SymbolPositions); n >= g.cfg.MaxPositionsPerSymbol {
		return reject(CheckSymbolCap, "max positions for %s reached (%d/%d)", req.Symbol, n, g.cfg.MaxPositionsPerSymbol)
	}

	// pyramid gating
	if len(req.SymbolPositions) > 0 {
		if v, blocked := g.checkPyramid(req, side); blocked {
			return v
		}
	}

	// 6. correlated group
	if idx, ok := g.group[req.Symbol]; ok && g.cfg.MaxCorrelatedPositions > 0 {
		n := 0
		for _, p := range req.AllPositions {
			if j, ok := g.group[p.Symbol]; ok && j == idx {
				n++
			}
		}
		if n >= g.cfg.MaxCorrelatedPositions {
			return reject(CheckCorrelation, "correlated group of %s already holds %d/%d positions",
				req.Symbol, n, g.cfg.MaxCorrelatedPositions)
		}
	}

	// 7. aggregate portfolio risk
	exposure := size / balance
	for _, p := range req.AllPositions {
		exposure += p.Notional() / balance
	}
	if exposure > g.cfg.MaxPortfolioRisk+epsilon {
		return reject(CheckPortfolioRisk, "portfolio exposure %.1f%% would exceed max %.1f%%",
			exposure*100, g.cfg.MaxPortfolioRisk*100)
	}

	// 8. confidence
	minConf := g.cfg.MinConfidence
	if req.Regime == domain.RegimeVolatile {
		minConf = g.cfg.VolatileMinConfidence
	}
	if d.Confidence < minConf {
		return reject(CheckConfidence, "confidence %.0f below minimum %.0f (%s)", d.Confidence, minConf, req.Regime)
	}

	// 9. margin
	margin := size / float64(lev)
	if margin > req.Portfolio.AvailableBalance+epsilon {
		return reject(CheckMargin, "required margin $%.2f exceeds available $%.2f", margin, req.Portfolio.AvailableBalance)
	}

	// 10. stop-loss / take-profit
	if d.StopLossPercent < g.cfg.MinStopLossPercent || d.StopLossPercent > g.cfg.MaxStopLossPercent {
		return reject(CheckStopLoss, "stop loss %.1f%% outside [%.0f, %.0f]",
			d.StopLossPercent, g.cfg.MinStopLossPercent, g.cfg.MaxStopLossPercent)
	}
	if d.TakeProfitPercent < g.cfg.MinTakeProfitPercent {
		return reject(CheckTakeProfit, "take profit %.1f%% below minimum %.0f%%", d.TakeProfitPercent, g.cfg.MinTakeProfitPercent)
	}

	return Verdict{
		Approved:    true,
		SizeDollars: size,
		Leverage:    lev,
		Reason:      fmt.Sprintf("approved $%.2f at %dx (confidence %.0f, %s)", size, lev, d.Confidence, req.Regime),
	}
}

func (g *Gate) checkPyramid(req Request, side domain.Side) (Verdict, bool) {
	first := req.SymbolPositions[0]
	for _, p := range req.SymbolPositions {
		if !p.IsPyramid {
			first = p
			break
		}
	}

	pnl := first.PnLPercent(req.Marks[req.Symbol])
	if pnl <= 0 {
		return reject(CheckPyramidPnL, "first position losing (%.2f%%), pyramid blocked", pnl), true
	}
	if req.Decision.Confidence < g.cfg.PyramidMinConfidence {
		return reject(CheckPyramidConf, "pyramid confidence %.0f below %.0f, pyramid blocked",
			req.Decision.Confidence, g.cfg.PyramidMinConfidence), true
	}
	if side != first.Side {
		return reject(CheckPyramidSide, "pyramid side %s differs from first position %s, pyramid blocked",
			side, first.Side), true
	}
	return Verdict{}, false
}
