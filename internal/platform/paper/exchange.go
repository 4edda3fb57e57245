// Package paper simulates futures order routing in memory against live
// market prices. Market orders fill at the mark price plus slippage; resting
// stop and take-profit orders trigger on Sweep.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// MarketData is the read-only venue surface the simulator prices against.
type MarketData interface {
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	GetSymbolTradingRules(ctx context.Context, symbol string) (domain.TradingRules, error)
}

// Config holds simulator parameters. FeeRate is a fraction of notional;
// SlippageBps moves fills against the taker.
type Config struct {
	StartingBalance float64
	FeeRate         float64
	SlippageBps     float64
}

type kind string

const (
	kindStop kind = "STOP_MARKET"
	kindTP   kind = "TAKE_PROFIT_MARKET"
)

type resting struct {
	id     string
	symbol string
	kind   kind
	side   domain.Side
	stop   float64
	qty    float64
	at     time.Time
}

// triggered reports whether price crosses the order's trigger.
func (o *resting) triggered(price float64) bool {
	sell := o.side == domain.SideShort
	switch o.kind {
	case kindStop:
		if sell {
			return price <= o.stop
		}
		return price >= o.stop
	default:
		if sell {
			return price >= o.stop
		}
		return price <= o.stop
	}
}

type netPosition struct {
	amount float64
	entry  float64
}

// Fill is a simulated execution.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       domain.Side
	Quantity   float64
	Price      float64
	Fee        float64
	Realized   float64
	Trigger    string
	ReduceOnly bool
	At         time.Time
}

// Exchange implements domain.Exchange without touching the venue's order
// endpoints.
type Exchange struct {
	md     MarketData
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	wallet    float64
	positions map[string]*netPosition
	leverage  map[string]int
	orders    map[string]*resting
	marks     map[string]float64
	lastFill  map[string]float64
	fills     []Fill
}

var _ domain.Exchange = (*Exchange)(nil)

// New creates a paper exchange funded with cfg.StartingBalance.
func New(md MarketData, cfg Config, logger *slog.Logger) *Exchange {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = 10000
	}
	return &Exchange{
		md:        md,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "paper_exchange")),
		now:       time.Now,
		wallet:    cfg.StartingBalance,
		positions: make(map[string]*netPosition),
		leverage:  make(map[string]int),
		orders:    make(map[string]*resting),
		marks:     make(map[string]float64),
		lastFill:  make(map[string]float64),
	}
}

// PlaceMarketOrder fills immediately at mark with slippage.
func (e *Exchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty float64, reduceOnly bool) (domain.OrderAck, error) {
	if qty <= 0 {
		return domain.OrderAck{}, &domain.ExchangeRejectError{Op: "market order", Code: -4003, Reason: "quantity less than or equal to zero"}
	}
	mark, err := e.GetMarkPrice(ctx, symbol)
	if err != nil {
		return domain.OrderAck{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.fillLocked(symbol, side, qty, e.slipped(mark, side), reduceOnly, "market")
	if err != nil {
		return domain.OrderAck{}, err
	}
	return domain.OrderAck{
		OrderID:     f.OrderID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		ExecutedQty: f.Quantity,
		AvgPrice:    f.Price,
		Status:      "FILLED",
		CreatedAt:   f.At,
	}, nil
}

// PlaceStopOrder rests a reduce-only stop-market order.
func (e *Exchange) PlaceStopOrder(_ context.Context, symbol string, side domain.Side, stopPrice, qty float64) (domain.OrderAck, error) {
	return e.rest(symbol, kindStop, side, stopPrice, qty)
}

// PlaceTakeProfitOrder rests a reduce-only take-profit-market order.
func (e *Exchange) PlaceTakeProfitOrder(_ context.Context, symbol string, side domain.Side, stopPrice, qty float64) (domain.OrderAck, error) {
	return e.rest(symbol, kindTP, side, stopPrice, qty)
}

func (e *Exchange) rest(symbol string, k kind, side domain.Side, stop, qty float64) (domain.OrderAck, error) {
	op := "stop order"
	if k == kindTP {
		op = "take-profit order"
	}
	if qty <= 0 || stop <= 0 {
		return domain.OrderAck{}, &domain.ExchangeRejectError{Op: op, Code: -1102, Reason: "stop price and quantity must be positive"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if mark, ok := e.marks[symbol]; ok {
		o := &resting{kind: k, side: side, stop: stop}
		if o.triggered(mark) {
			return domain.OrderAck{}, &domain.ExchangeRejectError{Op: op, Code: -2021, Reason: "order would immediately trigger"}
		}
	}
	o := &resting{
		id:     uuid.NewString(),
		symbol: symbol,
		kind:   k,
		side:   side,
		stop:   stop,
		qty:    qty,
		at:     e.now().UTC(),
	}
	e.orders[o.id] = o
	return domain.OrderAck{
		OrderID:   o.id,
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		StopPrice: stop,
		Status:    "NEW",
		CreatedAt: o.at,
	}, nil
}

// CancelOrder removes a resting order.
func (e *Exchange) CancelOrder(_ context.Context, symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok || o.symbol != symbol {
		return &domain.ExchangeRejectError{Op: "cancel order", Code: -2011, Reason: "unknown order sent"}
	}
	delete(e.orders, orderID)
	return nil
}

// CancelAllOpenOrders removes every resting order on symbol.
func (e *Exchange) CancelAllOpenOrders(_ context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelSymbolLocked(symbol)
	return nil
}

// GetPositionInfo returns the simulated net position.
func (e *Exchange) GetPositionInfo(ctx context.Context, symbol string) (domain.ExchangePosition, error) {
	mark, err := e.GetMarkPrice(ctx, symbol)
	if err != nil {
		return domain.ExchangePosition{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := domain.ExchangePosition{Symbol: symbol, MarkPrice: mark, Leverage: e.leverageLocked(symbol)}
	if p, ok := e.positions[symbol]; ok {
		out.Amount = p.amount
		out.EntryPrice = p.entry
		out.UnrealizedProfit = (mark - p.entry) * p.amount
	}
	return out, nil
}

// GetMarkPrice returns the venue mark price and remembers it for balance
// valuation.
func (e *Exchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	p, err := e.md.GetMarkPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.marks[symbol] = p
	e.mu.Unlock()
	return p, nil
}

// GetLastTradePrice returns the price of the last simulated fill.
func (e *Exchange) GetLastTradePrice(_ context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.lastFill[symbol]
	if !ok {
		return 0, fmt.Errorf("paper: last trade %s: %w", symbol, domain.ErrNoPriceAvailable)
	}
	return p, nil
}

// GetTickerPrice passes through to market data.
func (e *Exchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return e.md.GetTickerPrice(ctx, symbol)
}

// GetAccountBalance values open positions at the last seen marks.
func (e *Exchange) GetAccountBalance(_ context.Context) (domain.AccountBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var upnl, margin float64
	for sym, p := range e.positions {
		mark, ok := e.marks[sym]
		if !ok {
			mark = p.entry
		}
		upnl += (mark - p.entry) * p.amount
		margin += math.Abs(p.amount) * p.entry / float64(e.leverageLocked(sym))
	}
	return domain.AccountBalance{
		TotalWalletBalance: e.wallet,
		AvailableBalance:   math.Max(0, e.wallet+upnl-margin),
		UnrealizedProfit:   upnl,
	}, nil
}

// GetSymbolTradingRules passes through to market data.
func (e *Exchange) GetSymbolTradingRules(ctx context.Context, symbol string) (domain.TradingRules, error) {
	return e.md.GetSymbolTradingRules(ctx, symbol)
}

// SetLeverage records the symbol leverage.
func (e *Exchange) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return &domain.ExchangeRejectError{Op: "set leverage", Code: -4028, Reason: fmt.Sprintf("leverage %d is not valid", leverage)}
	}
	e.mu.Lock()
	e.leverage[symbol] = leverage
	e.mu.Unlock()
	return nil
}

// Sweep refreshes marks for every symbol with resting orders and fills the
// ones whose trigger was crossed. It returns the fills it produced.
func (e *Exchange) Sweep(ctx context.Context) []Fill {
	e.mu.Lock()
	seen := make(map[string]bool)
	var symbols []string
	for _, o := range e.orders {
		if !seen[o.symbol] {
			seen[o.symbol] = true
			symbols = append(symbols, o.symbol)
		}
	}
	e.mu.Unlock()
	sort.Strings(symbols)

	var out []Fill
	for _, sym := range symbols {
		mark, err := e.GetMarkPrice(ctx, sym)
		if err != nil {
			e.logger.Warn("sweep mark unavailable",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, e.OnPrice(sym, mark)...)
	}
	return out
}

// Run sweeps resting orders every interval until ctx is done.
func (e *Exchange) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.Sweep(ctx)
		}
	}
}

// OnPrice triggers resting orders on symbol crossed by price. Stops fire
// before take-profits placed at the same time.
func (e *Exchange) OnPrice(symbol string, price float64) []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.marks[symbol] = price
	var hit []*resting
	for _, o := range e.orders {
		if o.symbol == symbol && o.triggered(price) {
			hit = append(hit, o)
		}
	}
	sort.Slice(hit, func(i, j int) bool {
		if hit[i].kind != hit[j].kind {
			return hit[i].kind == kindStop
		}
		return hit[i].at.Before(hit[j].at)
	})

	var out []Fill
	for _, o := range hit {
		if _, still := e.orders[o.id]; !still {
			continue
		}
		delete(e.orders, o.id)
		f, err := e.fillLocked(symbol, o.side, o.qty, e.slipped(price, o.side), true, string(o.kind))
		if err != nil {
			e.logger.Info("resting order expired",
				slog.String("symbol", symbol),
				slog.String("order_id", o.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		f.OrderID = o.id
		out = append(out, f)
		e.logger.Info("resting order triggered",
			slog.String("symbol", symbol),
			slog.String("type", string(o.kind)),
			slog.Float64("stop", o.stop),
			slog.Float64("price", f.Price),
			slog.Float64("qty", f.Quantity),
		)
	}
	return out
}

// Fills returns every simulated execution so far.
func (e *Exchange) Fills() []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Fill(nil), e.fills...)
}

// fillLocked applies an execution to the net position and wallet.
func (e *Exchange) fillLocked(symbol string, side domain.Side, qty, price float64, reduceOnly bool, trigger string) (Fill, error) {
	p := e.positions[symbol]
	signed := qty * side.Sign()

	if reduceOnly {
		if p == nil || p.amount == 0 || math.Signbit(p.amount) == math.Signbit(signed) {
			return Fill{}, &domain.ExchangeRejectError{Op: "reduce-only order", Code: -2022, Reason: "ReduceOnly Order is rejected"}
		}
		if qty > math.Abs(p.amount) {
			qty = math.Abs(p.amount)
			signed = qty * side.Sign()
		}
	}
	if p == nil {
		p = &netPosition{}
		e.positions[symbol] = p
	}

	var realized float64
	switch {
	case p.amount == 0 || math.Signbit(p.amount) == math.Signbit(signed):
		total := p.amount + signed
		p.entry = (p.entry*math.Abs(p.amount) + price*qty) / math.Abs(total)
		p.amount = total
	default:
		closing := math.Min(qty, math.Abs(p.amount))
		realized = (price - p.entry) * closing * sign(p.amount)
		rest := p.amount + signed
		switch {
		case math.Abs(rest) < 1e-12:
			p.amount, p.entry = 0, 0
		case math.Signbit(rest) != math.Signbit(p.amount):
			p.amount, p.entry = rest, price
		default:
			p.amount = rest
		}
	}

	fee := qty * price * e.cfg.FeeRate
	e.wallet += realized - fee
	if p.amount == 0 {
		delete(e.positions, symbol)
		e.cancelSymbolLocked(symbol)
	}

	f := Fill{
		OrderID:    uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fee:        fee,
		Realized:   realized,
		Trigger:    trigger,
		ReduceOnly: reduceOnly,
		At:         e.now().UTC(),
	}
	e.lastFill[symbol] = price
	e.fills = append(e.fills, f)
	return f, nil
}

func (e *Exchange) cancelSymbolLocked(symbol string) {
	for id, o := range e.orders {
		if o.symbol == symbol {
			delete(e.orders, id)
		}
	}
}

func (e *Exchange) leverageLocked(symbol string) int {
	if l := e.leverage[symbol]; l > 0 {
		return l
	}
	return 1
}

func (e *Exchange) slipped(price float64, side domain.Side) float64 {
	return price * (1 + side.Sign()*e.cfg.SlippageBps/10000)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
