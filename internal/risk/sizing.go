package risk

import (
	"math"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// RegimeSizeMultiplier scales tier sizing by market regime. Values never
// exceed 1 so the confidence tier is the ceiling.
func RegimeSizeMultiplier(r domain.Regime) float64 {
	switch r {
	case domain.RegimeStrongTrendUp, domain.RegimeStrongTrendDown:
		return 1.0
	case domain.RegimeBreakoutUp, domain.RegimeBreakoutDown:
		return 1.0
	case domain.RegimeMomentum:
		return 1.0
	case domain.RegimeNeutral:
		return 0.9
	case domain.RegimeVolatile:
		return 0.8
	case domain.RegimeRanging:
		return 0.7
	case domain.RegimeUnknown:
		return 0.5
	}
	return 0.5
}

// RegimeLeverageAdjustment is added to the tier leverage.
func RegimeLeverageAdjustment(r domain.Regime) int {
	switch r {
	case domain.RegimeStrongTrendUp, domain.RegimeStrongTrendDown:
		return 0
	case domain.RegimeBreakoutUp, domain.RegimeBreakoutDown:
		return 0
	case domain.RegimeMomentum:
		return -1
	case domain.RegimeNeutral:
		return -1
	case domain.RegimeRanging:
		return -2
	case domain.RegimeVolatile:
		return -2
	case domain.RegimeUnknown:
		return -3
	}
	return -3
}

// StrategySizeMultiplier scales sizing by the setup a trade was taken on.
func StrategySizeMultiplier(s domain.StrategyType) float64 {
	switch s {
	case domain.StrategyTrendFollowing:
		return 1.0
	case domain.StrategyBreakout:
		return 1.0
	case domain.StrategyMomentum:
		return 1.0
	case domain.StrategyReversal:
		return 0.8
	case domain.StrategyNone:
		return 1.0
	}
	return 1.0
}

// SizingConfig holds the confidence tiers.
type SizingConfig struct {
	HighConfidence     float64
	MediumConfidence   float64
	HighTierFraction   float64
	MediumTierFraction float64
	LowTierFraction    float64
	HighLeverageAt     float64
	HighTierLeverage   int
	BaseTierLeverage   int
	BalanceBuffer      float64
	MaxFraction        float64
	MaxLeverage        int
}

// TierFraction returns the fixed share of balance for a confidence.
func (c SizingConfig) TierFraction(confidence float64) float64 {
	switch {
	case confidence >= c.HighConfidence:
		return c.HighTierFraction
	case confidence >= c.MediumConfidence:
		return c.MediumTierFraction
	default:
		return c.LowTierFraction
	}
}

// Size returns the notional in dollars for an entry.
func (c SizingConfig) Size(confidence, balance float64, regime domain.Regime, strategy domain.StrategyType, breakerCap float64) float64 {
	if balance <= 0 {
		return 0
	}
	size := balance * c.TierFraction(confidence)
	size *= RegimeSizeMultiplier(regime) * StrategySizeMultiplier(strategy)

	limit := math.Min(balance*c.BalanceBuffer, balance*c.MaxFraction)
	if breakerCap > 0 {
		limit = math.Min(limit, balance*breakerCap)
	}
	if size > limit {
		size = limit
	}
	return math.Floor(size*100) / 100
}

// Leverage returns the leverage for an entry after tier selection, regime
// adjustment and clamping.
func (c SizingConfig) Leverage(confidence float64, regime domain.Regime, breakerMax int) int {
	lev := c.BaseTierLeverage
	if confidence >= c.HighLeverageAt {
		lev = c.HighTierLeverage
	}
	lev += RegimeLeverageAdjustment(regime)
	if lev < 1 {
		lev = 1
	}
	if breakerMax > 0 && lev > breakerMax {
		lev = breakerMax
	}
	if lev > c.MaxLeverage {
		lev = c.MaxLeverage
	}
	return lev
}
