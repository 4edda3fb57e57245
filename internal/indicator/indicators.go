// Package indicator computes the fixed signal schema from OHLCV candles and
// classifies the market regime.
package indicator

import (
	"math"
)

// EMA returns the exponential moving average of prices seeded with the SMA
// of the first period values. Entries before period-1 are zero. Nil is
// returned when there are fewer than period prices.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	out := make([]float64, len(prices))
	k := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < len(prices); i++ {
		out[i] = (prices[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI returns Wilder's relative strength index of the last price.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) <= period {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
	}
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// MACDResult holds the last MACD values.
type MACDResult struct {
	MACD   float64
	Signal float64
	Diff   float64
}

// MACD computes the fast/slow EMA spread and its signal line.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	f := EMA(prices, fast)
	s := EMA(prices, slow)
	if f == nil || s == nil {
		return MACDResult{}
	}
	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, f[i]-s[i])
	}
	sig := EMA(line, signal)
	res := MACDResult{MACD: line[len(line)-1]}
	if sig != nil {
		res.Signal = sig[len(sig)-1]
	}
	res.Diff = res.MACD - res.Signal
	return res
}

// BandsResult holds the last Bollinger band values. Position is 0 at the
// lower band and 100 at the upper; Width is the band spread in percent of
// the middle.
type BandsResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Position float64
	Width    float64
}

// Bollinger computes bands over the last period prices with k standard
// deviations.
func Bollinger(prices []float64, period int, k float64) BandsResult {
	if period <= 0 || len(prices) < period {
		return BandsResult{Position: 50}
	}
	window := prices[len(prices)-period:]
	mid := mean(window)
	var sq float64
	for _, p := range window {
		sq += (p - mid) * (p - mid)
	}
	sd := math.Sqrt(sq / float64(period))

	r := BandsResult{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd, Position: 50}
	last := prices[len(prices)-1]
	if r.Upper != r.Lower {
		r.Position = (last - r.Lower) / (r.Upper - r.Lower) * 100
	}
	if mid != 0 {
		r.Width = (r.Upper - r.Lower) / mid * 100
	}
	return r
}

// ATR returns Wilder's average true range of the last bar.
func ATR(high, low, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n <= period || len(high) != n || len(low) != n {
		return 0
	}
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
	}
	atr := mean(tr[1 : period+1])
	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}

// PercentChange returns the change of the last price against the price
// bars earlier.
func PercentChange(prices []float64, bars int) float64 {
	n := len(prices)
	if bars <= 0 || n <= bars || prices[n-1-bars] == 0 {
		return 0
	}
	return (prices[n-1] - prices[n-1-bars]) / prices[n-1-bars] * 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		m = math.Min(m, x)
	}
	return m
}
