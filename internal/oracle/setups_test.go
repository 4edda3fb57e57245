package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func TestFindSetups_TrendFollowing(t *testing.T) {
	s := domain.MarketSignals{
		Symbol:            "BTCUSDT",
		Price:             105,
		Regime:            domain.RegimeStrongTrendUp,
		RSI:               60,
		MACDDiff:          1,
		VolumeRatio:       1.3,
		EMA9:              104,
		EMA21:             100,
		BollingerPosition: 60,
	}
	best, ok := BestSetup(s)
	require.True(t, ok)
	assert.Equal(t, domain.StrategyTrendFollowing, best.Strategy)
	assert.Equal(t, domain.SideLong, best.Side)
	assert.Equal(t, 80.0, best.Confidence)
	assert.Len(t, best.Reasons, 5)
}

func TestFindSetups_ReversalCapped(t *testing.T) {
	s := domain.MarketSignals{
		Price:             90,
		Regime:            domain.RegimeRanging,
		RSI:               22,
		BollingerPosition: 5,
		MACDDiff:          0.5,
	}
	setups := FindSetups(s)
	require.Len(t, setups, 1)
	assert.Equal(t, domain.StrategyReversal, setups[0].Strategy)
	assert.Equal(t, 75.0, setups[0].Confidence)
}

func TestFindSetups_BelowThresholdDropped(t *testing.T) {
	s := domain.MarketSignals{
		Price:  100,
		Regime: domain.RegimeStrongTrendDown,
		RSI:    20,
	}
	for _, st := range FindSetups(s) {
		assert.NotEqual(t, domain.StrategyTrendFollowing, st.Strategy)
	}
	_, ok := BestSetup(domain.MarketSignals{Regime: domain.RegimeNeutral, RSI: 50, BollingerPosition: 50})
	assert.False(t, ok)
}

func TestFindSetups_Momentum(t *testing.T) {
	s := domain.MarketSignals{
		Price:          100,
		Regime:         domain.RegimeBreakoutDown,
		RSI:            35,
		VolumeRatio:    2,
		PriceChange4h:  -5,
		PriceChange24h: -8,
		RecentLow:      100.05,
	}
	setups := FindSetups(s)
	var got []domain.StrategyType
	for _, st := range setups {
		got = append(got, st.Strategy)
		assert.Equal(t, domain.SideShort, st.Side)
	}
	assert.ElementsMatch(t, []domain.StrategyType{domain.StrategyBreakout, domain.StrategyMomentum}, got)
}

func TestBuildContext(t *testing.T) {
	in := ContextInput{
		Signals: domain.MarketSignals{
			Symbol: "BTCUSDT", Price: 105, Regime: domain.RegimeStrongTrendUp,
			RSI: 60, MACDDiff: 1, VolumeRatio: 1.3, EMA9: 104, EMA21: 100,
		},
		Portfolio:        domain.Portfolio{TotalValue: 5200, AvailableBalance: 4100},
		DrawdownPercent:  3.5,
		MaxOpenPositions: 3,
		Day:              12,
		TotalDays:        14,
		Positions: []PositionView{
			{Symbol: "BTCUSDT", Side: domain.SideLong, EntryPrice: 100, PnLPercent: 15, Leverage: 3},
			{Symbol: "ETHUSDT", Side: domain.SideShort, EntryPrice: 3000, PnLPercent: -2, Leverage: 2},
		},
	}
	out := BuildContext(in)
	assert.Contains(t, out, "TRADING DAY: 12/14")
	assert.Contains(t, out, "Market Regime: STRONG_TREND_UP")
	assert.Contains(t, out, "Best Setup Found: TREND_FOLLOWING")
	assert.Contains(t, out, "Open Positions: 2/3")
	assert.Contains(t, out, "EXISTING POSITION IN BTCUSDT")
	assert.NotContains(t, out, "IN ETHUSDT")
	assert.Contains(t, out, "Days Remaining: 2")
	assert.True(t, strings.Contains(out, "HIGH - Need aggressive gains"))
}

func TestFallback(t *testing.T) {
	f := Fallback{Mode: FallbackRules, LossPct: 5}
	d := f.Decide("BTCUSDT", []float64{-2, -6})
	assert.Equal(t, domain.ActionClose, d.Action)
	assert.Equal(t, domain.SourceFallback, d.Source)

	d = f.Decide("BTCUSDT", []float64{-2})
	assert.Equal(t, domain.ActionHold, d.Action)

	d = Fallback{Mode: FallbackHold, LossPct: 5}.Decide("BTCUSDT", []float64{-20})
	assert.Equal(t, domain.ActionHold, d.Action)
}
