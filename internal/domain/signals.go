package domain

import "time"

// MarketSignals is the fixed indicator schema produced for one symbol.
// BollingerPosition is 0 at the lower band and 100 at the upper band.
type MarketSignals struct {
	Symbol            string    `json:"symbol"`
	Price             float64   `json:"price"`
	RSI               float64   `json:"rsi"`
	MACD              float64   `json:"macd"`
	MACDSignal        float64   `json:"macd_signal"`
	MACDDiff          float64   `json:"macd_diff"`
	BollingerPosition float64   `json:"bollinger_position"`
	BollingerWidth    float64   `json:"bollinger_width"`
	ATRPercent        float64   `json:"atr_percent"`
	VolumeRatio       float64   `json:"volume_ratio"`
	EMA9              float64   `json:"ema_9"`
	EMA21             float64   `json:"ema_21"`
	EMA50             float64   `json:"ema_50"`
	RecentHigh        float64   `json:"recent_high"`
	RecentLow         float64   `json:"recent_low"`
	PriceChange1h     float64   `json:"price_change_1h"`
	PriceChange4h     float64   `json:"price_change_4h"`
	PriceChange24h    float64   `json:"price_change_24h"`
	Regime            Regime    `json:"regime"`
	Timestamp         time.Time `json:"timestamp"`
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
