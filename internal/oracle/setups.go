package oracle

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Setup is a rule-detected trade idea handed to the model as context.
type Setup struct {
	Strategy   domain.StrategyType `json:"strategy"`
	Side       domain.Side         `json:"side"`
	Confidence float64             `json:"confidence"`
	Reasons    []string            `json:"reasons"`
}

// FindSetups scores the four setup families against the signals. Only
// setups clearing their family's minimum confidence are returned.
func FindSetups(s domain.MarketSignals) []Setup {
	var out []Setup
	for _, fn := range []func(domain.MarketSignals) (Setup, bool){
		trendSetup,
		breakoutSetup,
		reversalSetup,
		momentumSetup,
	} {
		if st, ok := fn(s); ok {
			out = append(out, st)
		}
	}
	return out
}

// BestSetup returns the highest-confidence setup.
func BestSetup(s domain.MarketSignals) (Setup, bool) {
	var (
		best  Setup
		found bool
	)
	for _, st := range FindSetups(s) {
		if !found || st.Confidence > best.Confidence {
			best, found = st, true
		}
	}
	return best, found
}

func trendSetup(s domain.MarketSignals) (Setup, bool) {
	st := Setup{Strategy: domain.StrategyTrendFollowing}
	switch s.Regime {
	case domain.RegimeStrongTrendUp:
		st.Side = domain.SideLong
		st.add(30, "Strong uptrend confirmed")
		st.addIf(s.RSI > 50 && s.RSI < 70, 15, "RSI in bullish range")
		st.addIf(s.MACDDiff > 0, 15, "MACD bullish")
		st.addIf(s.VolumeRatio > 1.2, 10, "Above-average volume")
		st.addIf(s.Price > s.EMA9 && s.EMA9 > s.EMA21, 10, "Price above key EMAs")
	case domain.RegimeStrongTrendDown:
		st.Side = domain.SideShort
		st.add(30, "Strong downtrend confirmed")
		st.addIf(s.RSI < 50 && s.RSI > 30, 15, "RSI in bearish range")
		st.addIf(s.MACDDiff < 0, 15, "MACD bearish")
		st.addIf(s.VolumeRatio > 1.2, 10, "Above-average volume")
		st.addIf(s.Price < s.EMA9 && s.EMA9 < s.EMA21, 10, "Price below key EMAs")
	default:
		return Setup{}, false
	}
	return st.clamp(60, 95)
}

func breakoutSetup(s domain.MarketSignals) (Setup, bool) {
	st := Setup{Strategy: domain.StrategyBreakout}
	switch {
	case s.Regime == domain.RegimeBreakoutUp || (s.BollingerPosition > 85 && s.VolumeRatio > 1.5):
		st.Side = domain.SideLong
		st.add(35, "Price breaking out above resistance")
		st.addIf(s.Price > s.RecentHigh*0.999, 20, "Breaking recent high")
		st.addIf(s.RSI > 60, 15, "Strong momentum (RSI)")
		st.addIf(s.PriceChange24h > 3, 10, "Strong 24h performance")
	case s.Regime == domain.RegimeBreakoutDown || (s.BollingerPosition < 15 && s.VolumeRatio > 1.5):
		st.Side = domain.SideShort
		st.add(35, "Price breaking down below support")
		st.addIf(s.Price < s.RecentLow*1.001, 20, "Breaking recent low")
		st.addIf(s.RSI < 40, 15, "Strong bearish momentum")
		st.addIf(s.PriceChange24h < -3, 10, "Weak 24h performance")
	default:
		return Setup{}, false
	}
	return st.clamp(65, 95)
}

func reversalSetup(s domain.MarketSignals) (Setup, bool) {
	st := Setup{Strategy: domain.StrategyReversal}
	switch {
	case s.RSI < 30 && s.BollingerPosition < 20:
		st.Side = domain.SideLong
		st.add(40, "Oversold conditions (RSI + BB)")
		st.addIf(s.MACDDiff > 0, 20, "MACD showing bullish divergence")
		st.addIf(!s.Regime.Bearish(), 15, "Not in strong downtrend")
	case s.RSI > 70 && s.BollingerPosition > 80:
		st.Side = domain.SideShort
		st.add(40, "Overbought conditions (RSI + BB)")
		st.addIf(s.MACDDiff < 0, 20, "MACD showing bearish divergence")
		st.addIf(!s.Regime.Bullish(), 15, "Not in strong uptrend")
	default:
		return Setup{}, false
	}
	return st.clamp(60, 90)
}

func momentumSetup(s domain.MarketSignals) (Setup, bool) {
	st := Setup{Strategy: domain.StrategyMomentum}
	switch {
	case s.PriceChange4h > 4 && s.PriceChange24h > 6:
		st.Side = domain.SideLong
		st.add(35, fmt.Sprintf("Strong upward momentum (%.1f%% in 24h)", s.PriceChange24h))
		st.addIf(s.RSI > 55 && s.RSI < 75, 20, "RSI in momentum zone")
		st.addIf(s.VolumeRatio > 1.5, 15, "High volume confirmation")
		st.addIf(s.Regime.Bullish(), 10, "Aligned with trend")
	case s.PriceChange4h < -4 && s.PriceChange24h < -6:
		st.Side = domain.SideShort
		st.add(35, fmt.Sprintf("Strong downward momentum (%.1f%% in 24h)", s.PriceChange24h))
		st.addIf(s.RSI < 45 && s.RSI > 25, 20, "RSI in bearish momentum zone")
		st.addIf(s.VolumeRatio > 1.5, 15, "High volume confirmation")
		st.addIf(s.Regime.Bearish(), 10, "Aligned with trend")
	default:
		return Setup{}, false
	}
	return st.clamp(65, 95)
}

func (s *Setup) add(points float64, reason string) {
	s.Confidence += points
	s.Reasons = append(s.Reasons, reason)
}

func (s *Setup) addIf(cond bool, points float64, reason string) {
	if cond {
		s.add(points, reason)
	}
}

func (s Setup) clamp(floor, ceiling float64) (Setup, bool) {
	if s.Confidence < floor {
		return Setup{}, false
	}
	s.Confidence = math.Min(s.Confidence, ceiling)
	return s, true
}
