package indicator

import (
	"math"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Classify maps signals to a regime. Checks run in priority order: aligned
// trend, volatility breakout, momentum, volatile chop, range, then neutral.
func Classify(s domain.MarketSignals) domain.Regime {
	if s.Price <= 0 || s.EMA50 == 0 {
		return domain.RegimeUnknown
	}

	alignedUp := s.EMA9 > s.EMA21 && s.EMA21 > s.EMA50
	alignedDown := s.EMA9 < s.EMA21 && s.EMA21 < s.EMA50

	switch {
	case alignedUp && s.Price > s.EMA21 && s.RSI > 50 && s.MACDDiff > 0 && s.VolumeRatio > 1.2:
		return domain.RegimeStrongTrendUp
	case alignedDown && s.Price < s.EMA21 && s.RSI < 50 && s.MACDDiff < 0 && s.VolumeRatio > 1.2:
		return domain.RegimeStrongTrendDown
	}

	if s.ATRPercent > 3.0 && s.VolumeRatio > 1.5 {
		switch {
		case s.BollingerPosition > 80:
			return domain.RegimeBreakoutUp
		case s.BollingerPosition < 20:
			return domain.RegimeBreakoutDown
		}
	}

	if math.Abs(s.PriceChange4h) >= 3 && s.VolumeRatio > 1.2 &&
		math.Signbit(s.PriceChange4h) == math.Signbit(s.MACDDiff) {
		return domain.RegimeMomentum
	}
	if s.ATRPercent > 4.0 {
		return domain.RegimeVolatile
	}
	if s.RSI > 40 && s.RSI < 60 && s.BollingerPosition > 30 && s.BollingerPosition < 70 && s.ATRPercent < 2.5 {
		return domain.RegimeRanging
	}
	return domain.RegimeNeutral
}
