package domain

import (
	"context"
	"time"
)

// OrderAck is the venue acknowledgement of a placed order. AvgPrice is zero
// when the venue did not report a fill price.
type OrderAck struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	ExecutedQty float64   `json:"executed_qty"`
	AvgPrice    float64   `json:"avg_price"`
	StopPrice   float64   `json:"stop_price,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExchangePosition is the venue's view of a symbol's net position. Amount is
// signed: positive long, negative short.
type ExchangePosition struct {
	Symbol           string  `json:"symbol"`
	Amount           float64 `json:"amount"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	UnrealizedProfit float64 `json:"unrealized_profit"`
	Leverage         int     `json:"leverage"`
}

// Side returns the side implied by Amount.
func (p ExchangePosition) Side() Side {
	if p.Amount < 0 {
		return SideShort
	}
	return SideLong
}

// AccountBalance is the futures wallet summary.
type AccountBalance struct {
	TotalWalletBalance float64 `json:"total_wallet_balance"`
	AvailableBalance   float64 `json:"available_balance"`
	UnrealizedProfit   float64 `json:"unrealized_profit"`
}

// TotalValue is wallet balance plus unrealized profit.
func (b AccountBalance) TotalValue() float64 {
	return b.TotalWalletBalance + b.UnrealizedProfit
}

// TradingRules are the venue's quantity and price constraints for a symbol.
type TradingRules struct {
	Symbol       string  `json:"symbol"`
	QuantityStep float64 `json:"quantity_step"`
	MinQuantity  float64 `json:"min_quantity"`
	PriceTick    float64 `json:"price_tick"`
	MinNotional  float64 `json:"min_notional"`
}

// Exchange is the order-routing port. Implementations classify failures as
// *ExchangeTransientError or *ExchangeRejectError.
type Exchange interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty float64, reduceOnly bool) (OrderAck, error)
	PlaceStopOrder(ctx context.Context, symbol string, side Side, stopPrice, qty float64) (OrderAck, error)
	PlaceTakeProfitOrder(ctx context.Context, symbol string, side Side, stopPrice, qty float64) (OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	GetPositionInfo(ctx context.Context, symbol string) (ExchangePosition, error)
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	GetLastTradePrice(ctx context.Context, symbol string) (float64, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountBalance(ctx context.Context) (AccountBalance, error)
	GetSymbolTradingRules(ctx context.Context, symbol string) (TradingRules, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// CandleSource supplies OHLCV history for the indicator feed.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// SignalFeed produces indicator signals for a symbol.
type SignalFeed interface {
	Signals(ctx context.Context, symbol string) (MarketSignals, error)
}

// DecisionOracle turns a market/portfolio context into a Decision.
type DecisionOracle interface {
	Decide(ctx context.Context, symbol, context string, day int) (Decision, error)
}
