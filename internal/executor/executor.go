// Package executor turns approved decisions and ledger state into order
// sequences on the exchange.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/ledger"
)

// TierSpec is one configured rung of the take-profit ladder.
type TierSpec struct {
	TargetPercent    float64
	QuantityFraction float64
}

// Config holds order-management parameters. Percentages are plain percent
// (3 means 3%).
type Config struct {
	TPLadder           []TierSpec
	TrailActivationPct float64
	TrailTightPct      float64
	TrailWidePct       float64
	TrailAggressivePct float64
	HighVolatilityATR  float64
	Partial40TrailPct  float64
	BreakevenBufferPct float64
	QuickLockPnLPct    float64
	QuickLockMaxConf   float64
	ConvertAfterTier   int
	DedupWindow        time.Duration
}

// Executor places and manages orders for positions tracked in the ledger.
// Every exchange failure is returned as an error; nothing panics across the
// package boundary.
type Executor struct {
	exch   domain.Exchange
	ledger *ledger.Ledger
	cfg    Config
	guard  *entryGuard
	logger *slog.Logger
	now    func() time.Time

	rulesMu sync.Mutex
	rules   map[string]domain.TradingRules
}

// New creates an Executor.
func New(exch domain.Exchange, l *ledger.Ledger, cfg Config, logger *slog.Logger) *Executor {
	now := func() time.Time { return time.Now().UTC() }
	return &Executor{
		exch:   exch,
		ledger: l,
		cfg:    cfg,
		guard:  newEntryGuard(cfg.DedupWindow, now),
		logger: logger.With(slog.String("component", "executor")),
		now:    now,
		rules:  make(map[string]domain.TradingRules),
	}
}

// Ledger returns the ledger the executor mutates.
func (e *Executor) Ledger() *ledger.Ledger {
	return e.ledger
}

// PruneEntryGuard drops expired same-side entry reservations.
func (e *Executor) PruneEntryGuard() {
	e.guard.prune()
}

// Legs reports which orders of an entry were accepted.
type Legs struct {
	Entry      bool   `json:"entry"`
	StopLoss   bool   `json:"stop_loss"`
	TakeProfit []bool `json:"take_profit"`
}

// Complete reports whether every leg was placed.
func (l Legs) Complete() bool {
	if !l.Entry || !l.StopLoss {
		return false
	}
	for _, ok := range l.TakeProfit {
		if !ok {
			return false
		}
	}
	return true
}

// ClosedPosition is the outcome of closing one ledger position.
type ClosedPosition struct {
	Position   domain.Position `json:"position"`
	ExitPrice  float64         `json:"exit_price"`
	Quantity   float64         `json:"quantity"`
	PnLPercent float64         `json:"pnl_percent"`
	PnLDollars float64         `json:"pnl_dollars"`
	Reason     string          `json:"reason"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// CloseResult is the outcome of closing every position on a symbol.
type CloseResult struct {
	Symbol     string           `json:"symbol"`
	ExitPrice  float64          `json:"exit_price"`
	Quantity   float64          `json:"quantity"`
	PnLPercent float64          `json:"pnl_percent"`
	PnLDollars float64          `json:"pnl_dollars"`
	Closed     []ClosedPosition `json:"closed"`
}

// tradingRules returns cached venue rules for a symbol.
func (e *Executor) tradingRules(ctx context.Context, symbol string) (domain.TradingRules, error) {
	e.rulesMu.Lock()
	r, ok := e.rules[symbol]
	e.rulesMu.Unlock()
	if ok {
		return r, nil
	}

	r, err := e.exch.GetSymbolTradingRules(ctx, symbol)
	if err != nil {
		return domain.TradingRules{}, fmt.Errorf("executor: trading rules %s: %w", symbol, err)
	}
	e.rulesMu.Lock()
	e.rules[symbol] = r
	e.rulesMu.Unlock()
	return r, nil
}

// markPrice queries the mark price, falling back to the ticker.
func (e *Executor) markPrice(ctx context.Context, symbol string) (float64, error) {
	p, err := e.exch.GetMarkPrice(ctx, symbol)
	if err == nil && p > 0 {
		return p, nil
	}
	t, terr := e.exch.GetTickerPrice(ctx, symbol)
	if terr == nil && t > 0 {
		return t, nil
	}
	if err == nil {
		err = terr
	}
	if err == nil {
		err = domain.ErrNoPriceAvailable
	}
	return 0, fmt.Errorf("executor: price %s: %w", symbol, err)
}

// resolveFillPrice walks the fallback chain when an acknowledgement carries
// no average price: position info, mark, own last trade, ticker, then the
// pre-trade quote.
func (e *Executor) resolveFillPrice(ctx context.Context, symbol string, ack domain.OrderAck, quote float64) (float64, string) {
	if ack.AvgPrice > 0 {
		return ack.AvgPrice, "ack"
	}
	if info, err := e.exch.GetPositionInfo(ctx, symbol); err == nil && info.EntryPrice > 0 {
		return info.EntryPrice, "position_info"
	}
	if p, err := e.exch.GetMarkPrice(ctx, symbol); err == nil && p > 0 {
		return p, "mark"
	}
	if p, err := e.exch.GetLastTradePrice(ctx, symbol); err == nil && p > 0 {
		return p, "own_trade"
	}
	if p, err := e.exch.GetTickerPrice(ctx, symbol); err == nil && p > 0 {
		return p, "ticker"
	}
	return quote, "quote"
}

// minTradable returns the smallest quantity satisfying the venue's minimum
// quantity and notional at price.
func minTradable(r domain.TradingRules, price float64) float64 {
	q := decimal.NewFromFloat(r.MinQuantity)
	if r.MinNotional > 0 && price > 0 {
		q = decimal.Max(q, decimal.NewFromFloat(r.MinNotional).Div(decimal.NewFromFloat(price)))
	}
	return ceilToStep(q.InexactFloat64(), r.QuantityStep)
}

// tradable reports whether qty at price clears the venue minimums.
func tradable(r domain.TradingRules, qty, price float64) bool {
	if qty <= 0 {
		return false
	}
	if r.MinQuantity > 0 && exceeds(r.MinQuantity, qty) {
		return false
	}
	if r.MinNotional > 0 && notional(qty, price).LessThan(decimal.NewFromFloat(r.MinNotional)) {
		return false
	}
	return true
}

// stopFor returns a stop price pct percent away from ref against side.
func stopFor(side domain.Side, ref, pct, tick float64) float64 {
	return roundToStep(ref*(1-side.Sign()*pct/100), tick)
}

// onSafeSide reports whether a stop is still below (long) or above (short)
// the market so it will not trigger immediately.
func onSafeSide(side domain.Side, stop, mark float64) bool {
	if side == domain.SideShort {
		return stop > mark
	}
	return stop < mark
}
