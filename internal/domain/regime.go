package domain

import "strings"

// Regime is a categorical summary of current market behaviour.
type Regime int

const (
	RegimeUnknown Regime = iota
	RegimeStrongTrendUp
	RegimeStrongTrendDown
	RegimeBreakoutUp
	RegimeBreakoutDown
	RegimeMomentum
	RegimeRanging
	RegimeVolatile
	RegimeNeutral
)

var regimeNames = [...]string{
	RegimeUnknown:         "UNKNOWN",
	RegimeStrongTrendUp:   "STRONG_TREND_UP",
	RegimeStrongTrendDown: "STRONG_TREND_DOWN",
	RegimeBreakoutUp:      "BREAKOUT_UP",
	RegimeBreakoutDown:    "BREAKOUT_DOWN",
	RegimeMomentum:        "MOMENTUM",
	RegimeRanging:         "RANGING",
	RegimeVolatile:        "VOLATILE",
	RegimeNeutral:         "NEUTRAL",
}

// AllRegimes lists every regime value.
func AllRegimes() []Regime {
	out := make([]Regime, 0, len(regimeNames))
	for i := range regimeNames {
		out = append(out, Regime(i))
	}
	return out
}

func (r Regime) String() string {
	if r < 0 || int(r) >= len(regimeNames) {
		return regimeNames[RegimeUnknown]
	}
	return regimeNames[r]
}

// Bullish reports whether the regime favours longs.
func (r Regime) Bullish() bool {
	return r == RegimeStrongTrendUp || r == RegimeBreakoutUp
}

// Bearish reports whether the regime favours shorts.
func (r Regime) Bearish() bool {
	return r == RegimeStrongTrendDown || r == RegimeBreakoutDown
}

// OpposesSide reports whether the regime runs against a position on side.
func (r Regime) OpposesSide(side Side) bool {
	if side == SideLong {
		return r.Bearish()
	}
	return r.Bullish()
}

// ParseRegime parses a regime label. Unrecognised labels map to
// RegimeUnknown.
func ParseRegime(s string) Regime {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range regimeNames {
		if name == s {
			return Regime(i)
		}
	}
	return RegimeUnknown
}

func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Regime) UnmarshalText(b []byte) error {
	*r = ParseRegime(string(b))
	return nil
}

// StrategyType identifies the setup a trade was taken on.
type StrategyType int

const (
	StrategyNone StrategyType = iota
	StrategyTrendFollowing
	StrategyBreakout
	StrategyReversal
	StrategyMomentum
)

var strategyNames = [...]string{
	StrategyNone:           "NONE",
	StrategyTrendFollowing: "TREND_FOLLOWING",
	StrategyBreakout:       "BREAKOUT",
	StrategyReversal:       "REVERSAL",
	StrategyMomentum:       "MOMENTUM",
}

// AllStrategies lists every strategy type.
func AllStrategies() []StrategyType {
	out := make([]StrategyType, 0, len(strategyNames))
	for i := range strategyNames {
		out = append(out, StrategyType(i))
	}
	return out
}

func (s StrategyType) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return strategyNames[StrategyNone]
	}
	return strategyNames[s]
}

// ParseStrategy parses a strategy label. Unrecognised labels map to
// StrategyNone.
func ParseStrategy(v string) StrategyType {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, " ", "_")
	for i, name := range strategyNames {
		if name == v {
			return StrategyType(i)
		}
	}
	return StrategyNone
}

func (s StrategyType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StrategyType) UnmarshalText(b []byte) error {
	*s = ParseStrategy(string(b))
	return nil
}
