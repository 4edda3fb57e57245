package exitpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func testConfig() Config {
	return Config{
		ActionThreshold:     50,
		FullThreshold:       80,
		EmergencyLossPct:    -5,
		ProfitProtectPnLPct: 8,
		ProfitProtectWeight: 40,
		ReversalWeight:      30,
		RegimeWeight:        25,
		ExhaustionWeight:    20,
		LossWeight:          15,
		LossThresholdPct:    -2,
		OverboughtRSI:       75,
		OversoldRSI:         25,
		ExhaustionHighRSI:   80,
		ExhaustionLowRSI:    20,
	}
}

func longPos(entry float64, lev int) domain.Position {
	return domain.Position{
		ID:                "p1",
		Symbol:            "BTCUSDT",
		Side:              domain.SideLong,
		EntryPrice:        entry,
		OriginalQuantity:  1,
		RemainingQuantity: 1,
		Leverage:          lev,
	}
}

func neutralSignals(price float64) domain.MarketSignals {
	return domain.MarketSignals{
		Symbol:            "BTCUSDT",
		Price:             price,
		RSI:               50,
		MACDDiff:          0.1,
		BollingerPosition: 50,
		EMA21:             price * 0.99,
		Regime:            domain.RegimeNeutral,
	}
}

func TestPolicy_EmergencyFullExit(t *testing.T) {
	p := New(testConfig())
	pos := longPos(100, 1)
	sig := neutralSignals(94) // -6%
	sig.RSI = 10
	sig.Regime = domain.RegimeStrongTrendUp

	out := p.Evaluate(pos, sig)
	assert.Equal(t, domain.ExitFull, out.Action)
	assert.Equal(t, 100.0, out.Confidence)
	require.Len(t, out.Reasons, 1)
	assert.Contains(t, out.Reasons[0], "emergency")
}

func TestPolicy_EmergencyUsesLeveragedPnL(t *testing.T) {
	out := New(testConfig()).Evaluate(longPos(100, 5), neutralSignals(98.7)) // -6.5% at 5x
	assert.Equal(t, domain.ExitFull, out.Action)
}

func TestPolicy_NoSignalsHolds(t *testing.T) {
	out := New(testConfig()).Evaluate(longPos(100, 1), neutralSignals(101))
	assert.Equal(t, domain.ExitNone, out.Action)
	assert.Zero(t, out.Confidence)
}

func TestPolicy_ProfitProtectionPartial60(t *testing.T) {
	sig := neutralSignals(110) // +10%
	sig.RSI = 78
	sig.Regime = domain.RegimeStrongTrendDown

	out := New(testConfig()).Evaluate(longPos(100, 1), sig)
	assert.Equal(t, domain.ExitPartial60, out.Action)
	assert.Equal(t, 65.0, out.Confidence)
}

func TestPolicy_ReversalPartial40(t *testing.T) {
	sig := neutralSignals(101)
	sig.MACDDiff = -0.5
	sig.EMA21 = 102
	sig.Regime = domain.RegimeBreakoutDown

	out := New(testConfig()).Evaluate(longPos(100, 1), sig)
	assert.Equal(t, domain.ExitPartial40, out.Action)
	assert.Equal(t, 55.0, out.Confidence)
	assert.Len(t, out.Reasons, 2)
}

func TestPolicy_HighScoreFullExit(t *testing.T) {
	sig := neutralSignals(97) // -3%
	sig.MACDDiff = -0.5
	sig.EMA21 = 99
	sig.Regime = domain.RegimeStrongTrendDown
	sig.RSI = 85

	out := New(testConfig()).Evaluate(longPos(100, 1), sig)
	// 30 reversal + 25 regime + 20 exhaustion + 15 loss
	assert.Equal(t, domain.ExitFull, out.Action)
	assert.Equal(t, 90.0, out.Confidence)
}

func TestPolicy_ShortMirrorsLong(t *testing.T) {
	pos := longPos(100, 1)
	pos.Side = domain.SideShort
	sig := neutralSignals(90) // +10% for a short
	sig.RSI = 18
	sig.MACDDiff = 0.5
	sig.EMA21 = 89
	sig.Regime = domain.RegimeStrongTrendUp

	out := New(testConfig()).Evaluate(pos, sig)
	// 40 protection + 30 reversal + 25 regime + 20 exhaustion
	assert.Equal(t, domain.ExitFull, out.Action)
	assert.Equal(t, 100.0, out.Confidence)
}

func TestSelectWorst(t *testing.T) {
	a := longPos(100, 1)
	a.ID = "a"
	b := longPos(104, 1)
	b.ID = "b"

	w, ok := SelectWorst([]domain.Position{a, b}, 102)
	require.True(t, ok)
	assert.Equal(t, "b", w.ID)

	_, ok = SelectWorst(nil, 1)
	assert.False(t, ok)
}
