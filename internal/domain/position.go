package domain

import (
	"time"
)

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sign returns +1 for longs and -1 for shorts.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideShort {
		return SideLong
	}
	return SideShort
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// TrailType selects the trailing-stop distance profile.
type TrailType string

const (
	TrailTight      TrailType = "tight"
	TrailWide       TrailType = "wide"
	TrailAggressive TrailType = "aggressive"
)

// TPTier is one rung of the take-profit ladder. TargetPercent is an
// unleveraged price move from entry.
type TPTier struct {
	Index            int     `json:"tier_index"`
	TargetPercent    float64 `json:"target_percent"`
	QuantityFraction float64 `json:"quantity_fraction"`
	Quantity         float64 `json:"quantity,omitempty"`
	Hit              bool    `json:"hit"`
	Skipped          bool    `json:"skipped,omitempty"`
	OrderID          string  `json:"order_id,omitempty"`
}

// TrailingState tracks dynamic trailing-stop management. CurrentStopPrice is
// zero until the first trailing stop is placed.
type TrailingState struct {
	Active                bool       `json:"active"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	TrailType             TrailType  `json:"trail_type"`
	CurrentStopPrice      float64    `json:"current_stop_price,omitempty"`
	HighestFavorablePrice float64    `json:"highest_favorable_price"`
}

// PartialExit records a reduction of a position's remaining quantity.
type PartialExit struct {
	Timestamp      time.Time `json:"timestamp"`
	FractionClosed float64   `json:"fraction_closed"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Reason         string    `json:"reason"`
}

// Position is one open futures position. A symbol may carry a first position
// and up to N-1 pyramid positions on the same side.
type Position struct {
	ID                string        `json:"id"`
	Symbol            string        `json:"symbol"`
	Side              Side          `json:"side"`
	EntryPrice        float64       `json:"entry_price"`
	OriginalQuantity  float64       `json:"original_quantity"`
	RemainingQuantity float64       `json:"remaining_quantity"`
	Leverage          int           `json:"leverage"`
	EntryTime         time.Time     `json:"entry_time"`
	IsPyramid         bool          `json:"is_pyramid"`
	PyramidOf         string        `json:"pyramid_of,omitempty"`
	TPTiers           []TPTier      `json:"tp_tiers"`
	Trailing          TrailingState `json:"trailing"`
	ProfitLocked      bool          `json:"profit_locked"`
	PartialExits      []PartialExit `json:"partial_exits"`
	Confidence        float64       `json:"confidence"`
	StopLossPercent   float64       `json:"stop_loss_percent"`
	TakeProfitPercent float64       `json:"take_profit_percent"`
	StopOrderID       string        `json:"stop_order_id,omitempty"`
	StopPrice         float64       `json:"stop_price,omitempty"`
	Regime            Regime        `json:"regime"`
	Strategy          StrategyType  `json:"strategy"`
	FlatSince         *time.Time    `json:"flat_since,omitempty"`
}

// PnLPercent returns the leveraged unrealized PnL in percent at mark.
func (p Position) PnLPercent(mark float64) float64 {
	return p.PriceMovePercent(mark) * float64(p.Leverage)
}

// PriceMovePercent returns the unleveraged favorable price move in percent.
func (p Position) PriceMovePercent(mark float64) float64 {
	if p.EntryPrice <= 0 || mark <= 0 {
		return 0
	}
	return (mark - p.EntryPrice) / p.EntryPrice * p.Side.Sign() * 100
}

// PnLDollars returns the unrealized PnL of the remaining quantity.
func (p Position) PnLDollars(mark float64) float64 {
	return (mark - p.EntryPrice) * p.RemainingQuantity * p.Side.Sign()
}

// Notional returns the entry notional of the remaining quantity.
func (p Position) Notional() float64 {
	return p.EntryPrice * p.RemainingQuantity
}

// TierTargetPrice returns the trigger price of a take-profit tier.
func (p Position) TierTargetPrice(t TPTier) float64 {
	return p.EntryPrice * (1 + p.Side.Sign()*t.TargetPercent/100)
}

// IsMoreFavorableStop reports whether candidate is a tighter stop than current
// for the position's side. Any stop beats an unset (zero) one.
func (p Position) IsMoreFavorableStop(candidate, current float64) bool {
	if current <= 0 {
		return true
	}
	if p.Side == SideShort {
		return candidate < current
	}
	return candidate > current
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	c := p
	c.TPTiers = append([]TPTier(nil), p.TPTiers...)
	c.PartialExits = append([]PartialExit(nil), p.PartialExits...)
	if p.Trailing.StartedAt != nil {
		t := *p.Trailing.StartedAt
		c.Trailing.StartedAt = &t
	}
	if p.FlatSince != nil {
		t := *p.FlatSince
		c.FlatSince = &t
	}
	return c
}
