// Package binance adapts the Binance USDⓈ-M futures REST API to the
// domain.Exchange and domain.CandleSource ports.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/retry"
)

// Config holds client credentials and limits.
type Config struct {
	APIKey      string
	APISecret   string
	Testnet     bool
	BaseURL     string
	RecvWindow  int64
	HTTPTimeout time.Duration
	RateRPS     float64
	RateBurst   int
	Retry       retry.Policy
}

// Client is a rate-limited, retrying futures client.
type Client struct {
	api     *futures.Client
	limiter *rate.Limiter
	retry   retry.Policy
	recv    int64
	logger  *slog.Logger

	mu    sync.RWMutex
	rules map[string]domain.TradingRules
}

var (
	_ domain.Exchange     = (*Client)(nil)
	_ domain.CandleSource = (*Client)(nil)
)

// New creates a futures client. Testnet selects the testnet endpoints unless
// BaseURL overrides them.
func New(cfg Config, logger *slog.Logger) *Client {
	futures.UseTestnet = cfg.Testnet
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rps, burst := cfg.RateRPS, cfg.RateBurst
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	pol := cfg.Retry
	if pol.Attempts < 1 {
		pol = retry.Policy{Attempts: 3, Base: 100 * time.Millisecond, Factor: 2, Max: 5 * time.Second}
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:   pol,
		recv:    cfg.RecvWindow,
		logger:  logger.With(slog.String("component", "binance")),
		rules:   make(map[string]domain.TradingRules),
	}
}

// call waits for the rate limiter and retries transient failures. Every
// error returned is classified.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("binance: %s: %w", op, err)
		}
		err := classify(ctx, op, fn(ctx))
		if err != nil && domain.IsTransient(err) {
			c.logger.Warn("transient exchange error",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
}

func (c *Client) opts() []futures.RequestOption {
	if c.recv <= 0 {
		return nil
	}
	return []futures.RequestOption{futures.WithRecvWindow(c.recv)}
}

// PlaceMarketOrder sends a MARKET order. Side is the order direction: LONG
// buys and SHORT sells.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, qty float64, reduceOnly bool) (domain.OrderAck, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(c.formatQty(symbol, qty)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}
	return c.createOrder(ctx, "market order", symbol, side, svc)
}

// PlaceStopOrder rests a reduce-only STOP_MARKET order triggered on mark
// price.
func (c *Client) PlaceStopOrder(ctx context.Context, symbol string, side domain.Side, stopPrice, qty float64) (domain.OrderAck, error) {
	return c.placeTrigger(ctx, "stop order", futures.OrderTypeStopMarket, symbol, side, stopPrice, qty)
}

// PlaceTakeProfitOrder rests a reduce-only TAKE_PROFIT_MARKET order.
func (c *Client) PlaceTakeProfitOrder(ctx context.Context, symbol string, side domain.Side, stopPrice, qty float64) (domain.OrderAck, error) {
	return c.placeTrigger(ctx, "take-profit order", futures.OrderTypeTakeProfitMarket, symbol, side, stopPrice, qty)
}

func (c *Client) placeTrigger(ctx context.Context, op string, typ futures.OrderType, symbol string, side domain.Side, stopPrice, qty float64) (domain.OrderAck, error) {
	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side)).
		Type(typ).
		StopPrice(c.formatPrice(symbol, stopPrice)).
		Quantity(c.formatQty(symbol, qty)).
		ReduceOnly(true).
		WorkingType(futures.WorkingTypeMarkPrice)
	return c.createOrder(ctx, op, symbol, side, svc)
}

// createOrder submits svc under a single client order id. Once a submission
// has failed with an unknown outcome, each retry first looks the order up by
// that id and re-submits only when the venue has no record of it.
func (c *Client) createOrder(ctx context.Context, op, symbol string, side domain.Side, svc *futures.CreateOrderService) (domain.OrderAck, error) {
	clientID := uuid.NewString()
	svc = svc.NewClientOrderID(clientID)

	var ack domain.OrderAck
	submitted := false
	err := c.call(ctx, op, func(ctx context.Context) error {
		if submitted {
			o, err := c.api.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx, c.opts()...)
			if err == nil {
				c.logger.Info("order found after unknown submit outcome",
					slog.String("op", op),
					slog.String("client_order_id", clientID),
				)
				ack = orderToAck(o, side)
				return nil
			}
			if !isUnknownOrder(err) {
				return err
			}
		}
		submitted = true
		res, err := svc.Do(ctx, c.opts()...)
		if err != nil {
			return err
		}
		ack = toAck(res, side)
		return nil
	})
	return ack, err
}

// CancelOrder cancels one resting order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return &domain.ExchangeRejectError{Op: "cancel order", Reason: "invalid order id " + orderID}
	}
	return c.call(ctx, "cancel order", func(ctx context.Context) error {
		_, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx, c.opts()...)
		return err
	})
}

// CancelAllOpenOrders cancels every resting order on symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return c.call(ctx, "cancel all", func(ctx context.Context) error {
		return c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx, c.opts()...)
	})
}

// GetPositionInfo returns the venue's net position on symbol. A flat symbol
// yields a zero Amount.
func (c *Client) GetPositionInfo(ctx context.Context, symbol string) (domain.ExchangePosition, error) {
	var out domain.ExchangePosition
	err := c.call(ctx, "position info", func(ctx context.Context) error {
		risks, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx, c.opts()...)
		if err != nil {
			return err
		}
		out = domain.ExchangePosition{Symbol: symbol}
		for _, r := range risks {
			if r.Symbol != symbol {
				continue
			}
			amt := parseFloat(r.PositionAmt)
			if amt == 0 && out.Amount != 0 {
				continue
			}
			lev, _ := strconv.Atoi(r.Leverage)
			out = domain.ExchangePosition{
				Symbol:           symbol,
				Amount:           amt,
				EntryPrice:       parseFloat(r.EntryPrice),
				MarkPrice:        parseFloat(r.MarkPrice),
				UnrealizedProfit: parseFloat(r.UnRealizedProfit),
				Leverage:         lev,
			}
		}
		return nil
	})
	return out, err
}

// GetMarkPrice returns the premium-index mark price.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.call(ctx, "mark price", func(ctx context.Context) error {
		idx, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, p := range idx {
			if p.Symbol == symbol {
				price = parseFloat(p.MarkPrice)
			}
		}
		return nil
	})
	if err == nil && price <= 0 {
		err = fmt.Errorf("binance: mark price %s: %w", symbol, domain.ErrNoPriceAvailable)
	}
	return price, err
}

// GetLastTradePrice returns the price of the account's most recent fill on
// symbol.
func (c *Client) GetLastTradePrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.call(ctx, "last trade", func(ctx context.Context) error {
		trades, err := c.api.NewListAccountTradeService().Symbol(symbol).Limit(1).Do(ctx, c.opts()...)
		if err != nil {
			return err
		}
		var latest int64
		for _, t := range trades {
			if t.Time >= latest {
				latest = t.Time
				price = parseFloat(t.Price)
			}
		}
		return nil
	})
	if err == nil && price <= 0 {
		err = fmt.Errorf("binance: last trade %s: %w", symbol, domain.ErrNoPriceAvailable)
	}
	return price, err
}

// GetTickerPrice returns the latest public ticker price.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.call(ctx, "ticker", func(ctx context.Context) error {
		prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		for _, p := range prices {
			if p.Symbol == symbol {
				price = parseFloat(p.Price)
			}
		}
		return nil
	})
	if err == nil && price <= 0 {
		err = fmt.Errorf("binance: ticker %s: %w", symbol, domain.ErrNoPriceAvailable)
	}
	return price, err
}

// GetAccountBalance returns the futures wallet summary.
func (c *Client) GetAccountBalance(ctx context.Context) (domain.AccountBalance, error) {
	var out domain.AccountBalance
	err := c.call(ctx, "account", func(ctx context.Context) error {
		acct, err := c.api.NewGetAccountService().Do(ctx, c.opts()...)
		if err != nil {
			return err
		}
		out = domain.AccountBalance{
			TotalWalletBalance: parseFloat(acct.TotalWalletBalance),
			AvailableBalance:   parseFloat(acct.AvailableBalance),
			UnrealizedProfit:   parseFloat(acct.TotalUnrealizedProfit),
		}
		return nil
	})
	return out, err
}

// GetSymbolTradingRules returns the lot, tick and notional filters of
// symbol. Exchange info is fetched once and cached for every symbol.
func (c *Client) GetSymbolTradingRules(ctx context.Context, symbol string) (domain.TradingRules, error) {
	c.mu.RLock()
	r, ok := c.rules[symbol]
	c.mu.RUnlock()
	if ok {
		return r, nil
	}

	err := c.call(ctx, "exchange info", func(ctx context.Context) error {
		info, err := c.api.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, s := range info.Symbols {
			c.rules[s.Symbol] = toRules(s)
		}
		return nil
	})
	if err != nil {
		return domain.TradingRules{}, err
	}

	c.mu.RLock()
	r, ok = c.rules[symbol]
	c.mu.RUnlock()
	if !ok {
		return domain.TradingRules{}, &domain.ExchangeRejectError{Op: "exchange info", Reason: "unknown symbol " + symbol}
	}
	return r, nil
}

// SetLeverage sets the initial leverage of symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return c.call(ctx, "set leverage", func(ctx context.Context) error {
		_, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx, c.opts()...)
		return err
	})
}

// Candles returns the most recent limit klines, oldest first.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	var out []domain.Candle
	err := c.call(ctx, "klines", func(ctx context.Context) error {
		klines, err := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return err
		}
		out = make([]domain.Candle, 0, len(klines))
		for _, k := range klines {
			out = append(out, domain.Candle{
				OpenTime: time.UnixMilli(k.OpenTime).UTC(),
				Open:     parseFloat(k.Open),
				High:     parseFloat(k.High),
				Low:      parseFloat(k.Low),
				Close:    parseFloat(k.Close),
				Volume:   parseFloat(k.Volume),
			})
		}
		return nil
	})
	return out, err
}

func (c *Client) formatQty(symbol string, qty float64) string {
	c.mu.RLock()
	r, ok := c.rules[symbol]
	c.mu.RUnlock()
	if !ok {
		return formatFloat(qty, 0)
	}
	return formatFloat(qty, r.QuantityStep)
}

func (c *Client) formatPrice(symbol string, price float64) string {
	c.mu.RLock()
	r, ok := c.rules[symbol]
	c.mu.RUnlock()
	if !ok {
		return formatFloat(price, 0)
	}
	return formatFloat(price, r.PriceTick)
}
