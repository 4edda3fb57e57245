package domain

import "time"

// TradeEvent distinguishes the lifecycle step a TradeRecord captures.
type TradeEvent string

const (
	TradeOpen    TradeEvent = "OPEN"
	TradePartial TradeEvent = "PARTIAL"
	TradeClose   TradeEvent = "CLOSE"
)

// TradeRecord is the persisted trade-log schema.
type TradeRecord struct {
	ID         string       `json:"id"`
	PositionID string       `json:"position_id"`
	Event      TradeEvent   `json:"event"`
	Symbol     string       `json:"symbol"`
	Side       Side         `json:"side"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price,omitempty"`
	Quantity   float64      `json:"quantity"`
	Leverage   int          `json:"leverage"`
	PnLPercent float64      `json:"pnl_percent"`
	PnLDollars float64      `json:"pnl_dollars"`
	Confidence float64      `json:"confidence"`
	Regime     Regime       `json:"regime"`
	Strategy   StrategyType `json:"strategy"`
	IsPyramid  bool         `json:"is_pyramid"`
	Reason     string       `json:"reason"`
	OpenedAt   time.Time    `json:"opened_at"`
	Timestamp  time.Time    `json:"timestamp"`
}

// PerformanceSnapshot is one point of the equity curve.
type PerformanceSnapshot struct {
	Timestamp     time.Time    `json:"timestamp"`
	Cycle         int64        `json:"cycle"`
	TotalValue    float64      `json:"total_value"`
	Available     float64      `json:"available_balance"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	PeakValue     float64      `json:"peak_value"`
	Drawdown      float64      `json:"drawdown"`
	BreakerLevel  BreakerLevel `json:"breaker_level"`
	OpenPositions int          `json:"open_positions"`
}
