package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// MinCandles is the shortest history that yields every signal.
const MinCandles = 50

// Config holds feed parameters.
type Config struct {
	Interval string
	Limit    int
	CacheTTL time.Duration
}

type cached struct {
	at      time.Time
	candles []domain.Candle
}

// Feed implements domain.SignalFeed over a CandleSource. Candles are cached
// per symbol for CacheTTL; the price is refreshed from the ticker source on
// every call when one is set.
type Feed struct {
	src    domain.CandleSource
	prices func(ctx context.Context, symbol string) (float64, error)
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

var _ domain.SignalFeed = (*Feed)(nil)

// NewFeed creates a Feed. prices may be nil, in which case the last close is
// used as the current price.
func NewFeed(src domain.CandleSource, prices func(ctx context.Context, symbol string) (float64, error), cfg Config, logger *slog.Logger) *Feed {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.Limit < MinCandles {
		cfg.Limit = 100
	}
	return &Feed{
		src:    src,
		prices: prices,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "indicator_feed")),
		now:    time.Now,
		cache:  make(map[string]cached),
	}
}

// Signals returns the indicator schema for symbol.
func (f *Feed) Signals(ctx context.Context, symbol string) (domain.MarketSignals, error) {
	candles, err := f.candles(ctx, symbol)
	if err != nil {
		return domain.MarketSignals{}, err
	}
	if len(candles) < MinCandles {
		f.Invalidate(symbol)
		return domain.MarketSignals{}, fmt.Errorf("indicator: %s: %d candles, need %d: %w",
			symbol, len(candles), MinCandles, domain.ErrNotFound)
	}

	price := 0.0
	if f.prices != nil {
		p, err := f.prices(ctx, symbol)
		if err != nil {
			f.logger.Warn("ticker unavailable, using last close",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		} else {
			price = p
		}
	}

	s := Compute(symbol, candles, price)
	s.Timestamp = f.now().UTC()
	return s, nil
}

// Invalidate drops the cached candles for symbol.
func (f *Feed) Invalidate(symbol string) {
	f.mu.Lock()
	delete(f.cache, symbol)
	f.mu.Unlock()
}

func (f *Feed) candles(ctx context.Context, symbol string) ([]domain.Candle, error) {
	f.mu.Lock()
	c, ok := f.cache[symbol]
	f.mu.Unlock()
	if ok && f.now().Sub(c.at) < f.cfg.CacheTTL {
		return c.candles, nil
	}

	candles, err := f.src.Candles(ctx, symbol, f.cfg.Interval, f.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("indicator: candles %s: %w", symbol, err)
	}
	f.mu.Lock()
	f.cache[symbol] = cached{at: f.now(), candles: candles}
	f.mu.Unlock()
	return candles, nil
}

// Compute derives the signal schema from candles. A non-positive price means
// the last close.
func Compute(symbol string, candles []domain.Candle, price float64) domain.MarketSignals {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range candles {
		closes[i], highs[i], lows[i], vols[i] = c.Close, c.High, c.Low, c.Volume
	}
	last := closes[n-1]
	if price <= 0 {
		price = last
	}

	s := domain.MarketSignals{Symbol: symbol, Price: price}
	if e := EMA(closes, 9); e != nil {
		s.EMA9 = e[n-1]
	}
	if e := EMA(closes, 21); e != nil {
		s.EMA21 = e[n-1]
	}
	if e := EMA(closes, 50); e != nil {
		s.EMA50 = e[n-1]
	}
	s.RSI = RSI(closes, 14)

	m := MACD(closes, 12, 26, 9)
	s.MACD, s.MACDSignal, s.MACDDiff = m.MACD, m.Signal, m.Diff

	bb := Bollinger(closes, 20, 2)
	s.BollingerPosition, s.BollingerWidth = bb.Position, bb.Width

	if atr := ATR(highs, lows, closes, 14); last > 0 {
		s.ATRPercent = atr / last * 100
	}

	if n >= 20 {
		if avg := mean(vols[n-20:]); avg > 0 {
			s.VolumeRatio = vols[n-1] / avg
		} else {
			s.VolumeRatio = 1
		}
		s.RecentHigh = maxOf(highs[n-20:])
		s.RecentLow = minOf(lows[n-20:])
	}

	s.PriceChange1h = PercentChange(closes, 1)
	s.PriceChange4h = PercentChange(closes, 4)
	s.PriceChange24h = PercentChange(closes, 24)

	s.Regime = Classify(s)
	return s
}
