package oracle

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// SystemPrompt frames the model as the competition trader and fixes the
// output schema parsed by ParseDecision.
const SystemPrompt = `You are an elite crypto trader managing a futures portfolio in a time-boxed trading competition on Binance USDT-M futures.

HARD CONSTRAINTS:
- Maximum drawdown: 40% (breach ends the competition)
- Maximum leverage: 5x per trade
- All decisions are autonomous

OBJECTIVE: maximise total return (60% of score) and risk-adjusted return (40% of score).

GUIDELINES:
1. Only take high-probability setups (confidence above 70)
2. Use 3-5x leverage only on high conviction
3. Cut losses fast: 3-5% stop loss on every trade
4. Let winners run: 15-25% take profit targets
5. Reduce size or stand aside in RANGING and VOLATILE regimes

OUTPUT FORMAT (STRICT JSON, NO OTHER TEXT):
{
  "action": "LONG|SHORT|CLOSE|HOLD",
  "confidence": 0-100,
  "position_size_percent": 1-15,
  "leverage": 1-5,
  "entry_reason": "one or two sentences",
  "stop_loss_percent": 2-8,
  "take_profit_percent": 5-30,
  "urgency": "LOW|MEDIUM|HIGH",
  "strategy": "TREND_FOLLOWING|BREAKOUT|REVERSAL|MOMENTUM|NONE"
}

RULES:
- Output LONG or SHORT only with confidence >= 60
- Output HOLD when unsure
- Output CLOSE when the existing position should be exited
- Always set stop_loss_percent`

// PositionView is an open position as presented to the model.
type PositionView struct {
	Symbol     string
	Side       domain.Side
	EntryPrice float64
	PnLPercent float64
	Leverage   int
	IsPyramid  bool
}

// ContextInput is everything BuildContext renders for one symbol.
type ContextInput struct {
	Signals          domain.MarketSignals
	Portfolio        domain.Portfolio
	DrawdownPercent  float64
	Positions        []PositionView
	MaxOpenPositions int
	Day              int
	TotalDays        int
	BreakerLevel     domain.BreakerLevel
}

// BuildContext renders the per-symbol user message: indicators, the best
// rule-detected setup, portfolio status and competition pressure.
func BuildContext(in ContextInput) string {
	s := in.Signals
	var b strings.Builder

	fmt.Fprintf(&b, "TRADING DAY: %d/%d\n\n", in.Day, in.TotalDays)
	fmt.Fprintf(&b, "ASSET: %s\n", s.Symbol)
	fmt.Fprintf(&b, "Current Price: $%.2f\n", s.Price)
	fmt.Fprintf(&b, "24h Change: %+.2f%%\n", s.PriceChange24h)
	fmt.Fprintf(&b, "Market Regime: %s\n\n", s.Regime)

	macd := "Bearish"
	if s.MACDDiff > 0 {
		macd = "Bullish"
	}
	b.WriteString("TECHNICAL INDICATORS:\n")
	fmt.Fprintf(&b, "- RSI: %.1f\n", s.RSI)
	fmt.Fprintf(&b, "- MACD: %s (diff: %.2f)\n", macd, s.MACDDiff)
	fmt.Fprintf(&b, "- EMA Alignment: Price $%.2f vs EMA9 $%.2f vs EMA21 $%.2f vs EMA50 $%.2f\n", s.Price, s.EMA9, s.EMA21, s.EMA50)
	fmt.Fprintf(&b, "- Bollinger Bands: Position %.0f%% (0=bottom, 100=top), width %.2f%%\n", s.BollingerPosition, s.BollingerWidth)
	fmt.Fprintf(&b, "- Volume: %.2fx average\n", s.VolumeRatio)
	fmt.Fprintf(&b, "- ATR: %.2f%% (volatility)\n", s.ATRPercent)
	fmt.Fprintf(&b, "- Recent High: $%.2f | Recent Low: $%.2f\n", s.RecentHigh, s.RecentLow)
	fmt.Fprintf(&b, "- Change: 1h %+.2f%% | 4h %+.2f%%\n\n", s.PriceChange1h, s.PriceChange4h)

	b.WriteString("TRADE SETUP ANALYSIS:\n")
	if best, ok := BestSetup(s); ok {
		fmt.Fprintf(&b, "Best Setup Found: %s\n", best.Strategy)
		fmt.Fprintf(&b, "Direction: %s\n", best.Side)
		fmt.Fprintf(&b, "Confidence: %.0f%%\n", best.Confidence)
		b.WriteString("Reasons:\n")
		for _, r := range best.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	} else {
		b.WriteString("No high-confidence setup identified.\n")
	}

	b.WriteString("\nPORTFOLIO STATUS:\n")
	fmt.Fprintf(&b, "- Total Value: $%.2f\n", in.Portfolio.TotalValue)
	fmt.Fprintf(&b, "- Available Balance: $%.2f\n", in.Portfolio.AvailableBalance)
	fmt.Fprintf(&b, "- Current Drawdown: %.1f%%\n", in.DrawdownPercent)
	fmt.Fprintf(&b, "- Circuit Breaker: %s\n", in.BreakerLevel)
	fmt.Fprintf(&b, "- Open Positions: %d/%d\n", len(in.Positions), in.MaxOpenPositions)

	for _, p := range in.Positions {
		if p.Symbol != s.Symbol {
			continue
		}
		kind := "POSITION"
		if p.IsPyramid {
			kind = "PYRAMID POSITION"
		}
		fmt.Fprintf(&b, "- EXISTING %s IN %s:\n", kind, p.Symbol)
		fmt.Fprintf(&b, "  Side: %s\n", p.Side)
		fmt.Fprintf(&b, "  Entry: $%.2f\n", p.EntryPrice)
		fmt.Fprintf(&b, "  Current PnL: %+.2f%%\n", p.PnLPercent)
		fmt.Fprintf(&b, "  Leverage: %dx\n", p.Leverage)
	}

	remaining := in.TotalDays - in.Day
	if remaining < 0 {
		remaining = 0
	}
	b.WriteString("\nCOMPETITION STATUS:\n")
	fmt.Fprintf(&b, "- Days Remaining: %d\n", remaining)
	fmt.Fprintf(&b, "- Pressure Level: %s\n", pressure(in.Day, in.TotalDays))
	b.WriteString("\nYOUR DECISION:\nAnalyze the above data and provide your trading decision in strict JSON format.\n")
	return b.String()
}

func pressure(day, total int) string {
	if total <= 0 {
		return "MEDIUM - Steady growth"
	}
	switch frac := float64(day) / float64(total); {
	case frac > 10.0/14:
		return "HIGH - Need aggressive gains"
	case frac > 5.0/14:
		return "MEDIUM - Steady growth"
	default:
		return "LOW - Building foundation"
	}
}
