package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type placed struct {
	Kind       string
	Side       domain.Side
	Qty        float64
	Price      float64
	ReduceOnly bool
	ID         string
}

// fakeExchange records every order and serves configurable prices.
type fakeExchange struct {
	rules   domain.TradingRules
	mark    float64
	ticker  float64
	last    float64
	info    domain.ExchangePosition
	ackAvg  bool
	balance domain.AccountBalance

	markErr, infoErr, lastErr error
	marketErr, stopErr, tpErr error
	cancelErr, cancelAllErr   error
	stopErrOnce               bool

	seq       int
	orders    []placed
	cancelled []string
	cancelAll []string
	leverage  map[string]int
}

func newFake(mark float64) *fakeExchange {
	return &fakeExchange{
		rules: domain.TradingRules{
			Symbol:       "BTCUSDT",
			QuantityStep: 0.001,
			MinQuantity:  0.001,
			PriceTick:    0.01,
			MinNotional:  5,
		},
		mark:     mark,
		ticker:   mark,
		ackAvg:   true,
		leverage: make(map[string]int),
	}
}

func (f *fakeExchange) nextID() string {
	f.seq++
	return fmt.Sprintf("o-%d", f.seq)
}

func (f *fakeExchange) ordersOf(kind string) []placed {
	var out []placed
	for _, o := range f.orders {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, symbol string, side domain.Side, qty float64, reduceOnly bool) (domain.OrderAck, error) {
	if f.marketErr != nil {
		return domain.OrderAck{}, f.marketErr
	}
	id := f.nextID()
	f.orders = append(f.orders, placed{Kind: "market", Side: side, Qty: qty, ReduceOnly: reduceOnly, ID: id})
	ack := domain.OrderAck{OrderID: id, Symbol: symbol, Side: side, Quantity: qty, ExecutedQty: qty, Status: "FILLED"}
	if f.ackAvg {
		ack.AvgPrice = f.mark
	}
	return ack, nil
}

func (f *fakeExchange) PlaceStopOrder(_ context.Context, symbol string, side domain.Side, stop, qty float64) (domain.OrderAck, error) {
	if f.stopErr != nil {
		err := f.stopErr
		if f.stopErrOnce {
			f.stopErr = nil
		}
		return domain.OrderAck{}, err
	}
	id := f.nextID()
	f.orders = append(f.orders, placed{Kind: "stop", Side: side, Qty: qty, Price: stop, ID: id})
	return domain.OrderAck{OrderID: id, Symbol: symbol, Side: side, Quantity: qty, StopPrice: stop, Status: "NEW"}, nil
}

func (f *fakeExchange) PlaceTakeProfitOrder(_ context.Context, symbol string, side domain.Side, stop, qty float64) (domain.OrderAck, error) {
	if f.tpErr != nil {
		return domain.OrderAck{}, f.tpErr
	}
	id := f.nextID()
	f.orders = append(f.orders, placed{Kind: "tp", Side: side, Qty: qty, Price: stop, ID: id})
	return domain.OrderAck{OrderID: id, Symbol: symbol, Side: side, Quantity: qty, StopPrice: stop, Status: "NEW"}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, _ string, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) CancelAllOpenOrders(_ context.Context, symbol string) error {
	if f.cancelAllErr != nil {
		return f.cancelAllErr
	}
	f.cancelAll = append(f.cancelAll, symbol)
	return nil
}

func (f *fakeExchange) GetPositionInfo(_ context.Context, _ string) (domain.ExchangePosition, error) {
	if f.infoErr != nil {
		return domain.ExchangePosition{}, f.infoErr
	}
	return f.info, nil
}

func (f *fakeExchange) GetMarkPrice(_ context.Context, _ string) (float64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	return f.mark, nil
}

func (f *fakeExchange) GetLastTradePrice(_ context.Context, _ string) (float64, error) {
	if f.lastErr != nil {
		return 0, f.lastErr
	}
	return f.last, nil
}

func (f *fakeExchange) GetTickerPrice(_ context.Context, _ string) (float64, error) {
	if f.ticker <= 0 {
		return 0, errors.New("no ticker")
	}
	return f.ticker, nil
}

func (f *fakeExchange) GetAccountBalance(_ context.Context) (domain.AccountBalance, error) {
	return f.balance, nil
}

func (f *fakeExchange) GetSymbolTradingRules(_ context.Context, symbol string) (domain.TradingRules, error) {
	r := f.rules
	r.Symbol = symbol
	return r, nil
}

func (f *fakeExchange) SetLeverage(_ context.Context, symbol string, lev int) error {
	f.leverage[symbol] = lev
	return nil
}
