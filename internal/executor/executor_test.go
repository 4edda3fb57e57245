package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/ledger"
)

func testConfig() Config {
	return Config{
		TPLadder: []TierSpec{
			{TargetPercent: 6, QuantityFraction: 0.3},
			{TargetPercent: 12, QuantityFraction: 0.4},
			{TargetPercent: 20, QuantityFraction: 0.3},
		},
		TrailActivationPct: 3,
		TrailTightPct:      1.5,
		TrailWidePct:       3,
		TrailAggressivePct: 0.8,
		HighVolatilityATR:  3,
		Partial40TrailPct:  1,
		BreakevenBufferPct: 0.1,
		QuickLockPnLPct:    2,
		QuickLockMaxConf:   75,
		ConvertAfterTier:   2,
		DedupWindow:        time.Minute,
	}
}

func newTestExecutor(f *fakeExchange) *Executor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(f, ledger.New(2), testConfig(), logger)
}

func openReq(notional float64, lev int) OpenRequest {
	return OpenRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideLong,
		Notional:      notional,
		Leverage:      lev,
		StopLossPct:   3,
		TakeProfitPct: 20,
		Confidence:    80,
		Regime:        domain.RegimeStrongTrendUp,
		Strategy:      domain.StrategyTrendFollowing,
	}
}

// addPos records a long position at entry 100 directly in the ledger.
func addPos(t *testing.T, e *Executor, id string, qty float64, conf float64) domain.Position {
	t.Helper()
	p := domain.Position{
		ID:                id,
		Symbol:            "BTCUSDT",
		Side:              domain.SideLong,
		EntryPrice:        100,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		Leverage:          3,
		EntryTime:         time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Confidence:        conf,
		StopPrice:         97,
		StopOrderID:       "stop-" + id,
		TPTiers: []domain.TPTier{
			{Index: 1, TargetPercent: 6, QuantityFraction: 0.3, Quantity: 0.3 * qty, OrderID: "tp1-" + id},
			{Index: 2, TargetPercent: 12, QuantityFraction: 0.4, Quantity: 0.4 * qty, OrderID: "tp2-" + id},
			{Index: 3, TargetPercent: 20, QuantityFraction: 0.3, Quantity: 0.3 * qty, OrderID: "tp3-" + id},
		},
	}
	require.NoError(t, e.Ledger().Add(p))
	got, err := e.Ledger().Find("BTCUSDT", id)
	require.NoError(t, err)
	return got
}

func TestOpenPosition_PlacesAllLegs(t *testing.T) {
	f := newFake(50000)
	e := newTestExecutor(f)

	res, err := e.OpenPosition(context.Background(), openReq(750, 5))
	require.NoError(t, err)

	assert.True(t, res.Legs.Complete())
	assert.Equal(t, "ack", res.FillSource)
	assert.InDelta(t, 50000, res.FilledPrice, 1e-9)
	assert.InDelta(t, 0.015, res.Quantity, 1e-12)
	assert.Len(t, res.OrderRefs, 5)
	assert.Equal(t, 5, f.leverage["BTCUSDT"])

	stops := f.ordersOf("stop")
	require.Len(t, stops, 1)
	assert.InDelta(t, 48500, stops[0].Price, 1e-9)
	assert.Equal(t, domain.SideShort, stops[0].Side)

	tps := f.ordersOf("tp")
	require.Len(t, tps, 3)
	assert.InDelta(t, 53000, tps[0].Price, 1e-9)
	assert.InDelta(t, 56000, tps[1].Price, 1e-9)
	assert.InDelta(t, 60000, tps[2].Price, 1e-9)
	assert.InDelta(t, 0.004, tps[0].Qty, 1e-12)
	assert.InDelta(t, 0.006, tps[1].Qty, 1e-12)
	assert.InDelta(t, 0.005, tps[2].Qty, 1e-12)

	got := e.Ledger().Get("BTCUSDT")
	require.Len(t, got, 1)
	assert.Equal(t, res.Position.ID, got[0].ID)
	assert.InDelta(t, 48500, got[0].StopPrice, 1e-9)
	assert.False(t, got[0].IsPyramid)
}

func TestOpenPosition_FillPriceFallbackChain(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f *fakeExchange)
		source string
		price  float64
	}{
		{
			name: "position info",
			setup: func(f *fakeExchange) {
				f.info = domain.ExchangePosition{Symbol: "BTCUSDT", Amount: 0.015, EntryPrice: 50050}
			},
			source: "position_info",
			price:  50050,
		},
		{
			name: "mark",
			setup: func(f *fakeExchange) {
				f.infoErr = errors.New("timeout")
			},
			source: "mark",
			price:  50000,
		},
		{
			name: "own trade",
			setup: func(f *fakeExchange) {
				f.infoErr = errors.New("timeout")
				f.markErr = errors.New("timeout")
				f.ticker = 49900
				f.last = 49950
			},
			source: "own_trade",
			price:  49950,
		},
		{
			name: "ticker",
			setup: func(f *fakeExchange) {
				f.infoErr = errors.New("timeout")
				f.markErr = errors.New("timeout")
				f.lastErr = errors.New("timeout")
				f.ticker = 49900
			},
			source: "ticker",
			price:  49900,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFake(50000)
			f.ackAvg = false
			tc.setup(f)
			e := newTestExecutor(f)

			res, err := e.OpenPosition(context.Background(), openReq(750, 5))
			require.NoError(t, err)
			assert.Equal(t, tc.source, res.FillSource)
			assert.InDelta(t, tc.price, res.FilledPrice, 1e-9)
			assert.InDelta(t, tc.price, e.Ledger().Get("BTCUSDT")[0].EntryPrice, 1e-9)
		})
	}
}

func TestOpenPosition_StopRejectedIsPartialSuccess(t *testing.T) {
	f := newFake(50000)
	f.stopErr = &domain.ExchangeRejectError{Op: "stop", Code: -2021, Reason: "order would immediately trigger"}
	e := newTestExecutor(f)

	res, err := e.OpenPosition(context.Background(), openReq(750, 5))
	require.NoError(t, err)
	assert.True(t, res.Legs.Entry)
	assert.False(t, res.Legs.StopLoss)
	assert.Equal(t, []bool{true, true, true}, res.Legs.TakeProfit)
	assert.False(t, res.Legs.Complete())

	got := e.Ledger().Get("BTCUSDT")
	require.Len(t, got, 1)
	assert.Empty(t, got[0].StopOrderID)
}

func TestOpenPosition_TakeProfitRejectedSkipsTier(t *testing.T) {
	f := newFake(50000)
	f.tpErr = &domain.ExchangeRejectError{Op: "take_profit", Code: -4164, Reason: "min notional"}
	e := newTestExecutor(f)

	res, err := e.OpenPosition(context.Background(), openReq(750, 5))
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false}, res.Legs.TakeProfit)
	for _, tier := range e.Ledger().Get("BTCUSDT")[0].TPTiers {
		assert.True(t, tier.Skipped)
	}
}

func TestOpenPosition_EntryFailureRecordsNothing(t *testing.T) {
	f := newFake(50000)
	f.marketErr = &domain.ExchangeTransientError{Op: "market", Err: errors.New("connection reset")}
	e := newTestExecutor(f)

	_, err := e.OpenPosition(context.Background(), openReq(750, 5))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Equal(t, 0, e.Ledger().Count())
	assert.Empty(t, f.ordersOf("stop"))

	f.marketErr = nil
	_, err = e.OpenPosition(context.Background(), openReq(750, 5))
	require.NoError(t, err, "a failed entry must not block the retry")
	assert.Equal(t, 1, e.Ledger().Count())
}

func TestOpenPosition_DuplicateSuppressed(t *testing.T) {
	f := newFake(50000)
	e := newTestExecutor(f)

	_, err := e.OpenPosition(context.Background(), openReq(750, 5))
	require.NoError(t, err)
	_, err = e.OpenPosition(context.Background(), openReq(750, 5))
	require.ErrorIs(t, err, domain.ErrDuplicateEntry)
	assert.Equal(t, 1, e.Ledger().Count())
}

func TestOpenPosition_RoundsUpToMinimumNotional(t *testing.T) {
	f := newFake(100)
	f.rules = domain.TradingRules{QuantityStep: 0.01, MinQuantity: 0.01, PriceTick: 0.01, MinNotional: 5}
	e := newTestExecutor(f)

	res, err := e.OpenPosition(context.Background(), openReq(3, 3))
	require.NoError(t, err)
	assert.InDelta(t, 0.05, res.Quantity, 1e-12)
	assert.Equal(t, []bool{true, false, false}, res.Legs.TakeProfit)

	tiers := res.Position.TPTiers
	assert.InDelta(t, 0.05, tiers[0].Quantity, 1e-12)
	assert.True(t, tiers[1].Skipped)
	assert.True(t, tiers[2].Skipped)
}

func TestOpenPosition_RejectsBadRequest(t *testing.T) {
	e := newTestExecutor(newFake(100))
	req := openReq(100, 3)
	req.Side = "UP"
	_, err := e.OpenPosition(context.Background(), req)
	assert.True(t, domain.IsValidation(err))
}

func TestCheckTPTierHitsAndConvert_TierTwoConvertsToAggressiveTrailing(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)

	res, err := e.OpenPosition(context.Background(), openReq(300, 3))
	require.NoError(t, err)
	tier3Order := res.Position.TPTiers[2].OrderID
	require.NotEmpty(t, tier3Order)

	f.mark = 112.5
	pos, err := e.Ledger().Find("BTCUSDT", res.Position.ID)
	require.NoError(t, err)

	converted, err := e.CheckTPTierHitsAndConvert(context.Background(), pos, 112.5)
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Contains(t, f.cancelled, tier3Order)

	pos, err = e.Ledger().Find("BTCUSDT", res.Position.ID)
	require.NoError(t, err)
	assert.True(t, pos.TPTiers[0].Hit)
	assert.True(t, pos.TPTiers[1].Hit)
	assert.False(t, pos.TPTiers[2].Hit)
	assert.True(t, pos.TPTiers[2].Skipped)
	assert.Empty(t, pos.TPTiers[2].OrderID)
	assert.Equal(t, domain.TrailAggressive, pos.Trailing.TrailType)
	assert.True(t, pos.Trailing.Active)
	assert.InDelta(t, 0.9, pos.RemainingQuantity, 1e-9)
	assert.Len(t, pos.PartialExits, 2)

	converted, err = e.CheckTPTierHitsAndConvert(context.Background(), pos, 113)
	require.NoError(t, err)
	assert.False(t, converted, "conversion happens once")
}

func TestCheckTPTierHitsAndConvert_TierOneOnly(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	converted, err := e.CheckTPTierHitsAndConvert(context.Background(), pos, 107)
	require.NoError(t, err)
	assert.False(t, converted)
	assert.Empty(t, f.cancelled)

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.True(t, pos.TPTiers[0].Hit)
	assert.InDelta(t, 0.7, pos.RemainingQuantity, 1e-9)
	assert.Equal(t, domain.TrailType(""), pos.Trailing.TrailType)
}

func TestCheckTPTierHitsAndConvert_UsesReplacedTierQuantities(t *testing.T) {
	f := newFake(105)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)
	ctx := context.Background()

	_, err := e.ExecuteTieredExit(ctx, pos, domain.ExitSignal{Action: domain.ExitPartial60})
	require.NoError(t, err)
	tps := f.ordersOf("tp")
	require.Len(t, tps, 3)

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.12, pos.TPTiers[0].Quantity, 1e-12)
	assert.InDelta(t, 0.16, pos.TPTiers[1].Quantity, 1e-12)
	assert.InDelta(t, 0.12, pos.TPTiers[2].Quantity, 1e-12)

	converted, err := e.CheckTPTierHitsAndConvert(ctx, pos, 112.5)
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Contains(t, f.cancelled, tps[2].ID)

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err, "venue still holds the tier 3 quantity")
	assert.InDelta(t, 0.12, pos.RemainingQuantity, 1e-12)
	require.Len(t, pos.PartialExits, 3)
	assert.InDelta(t, 0.12, pos.PartialExits[1].Quantity, 1e-12)
	assert.InDelta(t, 0.16, pos.PartialExits[2].Quantity, 1e-12)
}

func TestCheckTPTierHitsAndConvert_StoredQuantityCappedAtRemaining(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)
	require.NoError(t, e.Ledger().SetTPOrder("BTCUSDT", "a", 1, "tp1-a", 5))

	pos, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	converted, err := e.CheckTPTierHitsAndConvert(context.Background(), pos, 107)
	require.NoError(t, err)
	assert.False(t, converted)
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestCheckTPTierHitsAndConvert_SkippedConversionTierStillConverts(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	require.NoError(t, e.Ledger().SetTPOrder("BTCUSDT", "a", 2, "", 0))

	pos, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	converted, err := e.CheckTPTierHitsAndConvert(context.Background(), pos, 112.5)
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Contains(t, f.cancelled, "tp3-a")

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.True(t, pos.TPTiers[0].Hit)
	assert.False(t, pos.TPTiers[1].Hit)
	assert.True(t, pos.TPTiers[2].Skipped)
	assert.InDelta(t, 0.7, pos.RemainingQuantity, 1e-12)
	assert.Equal(t, domain.TrailAggressive, pos.Trailing.TrailType)

	converted, err = e.CheckTPTierHitsAndConvert(context.Background(), pos, 113)
	require.NoError(t, err)
	assert.False(t, converted)
}

func TestUpdateDynamicTrailingStop_SkippedConversionTierTrailsAggressively(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	require.NoError(t, e.Ledger().SetTPOrder("BTCUSDT", "a", 2, "", 0))

	pos, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	moved, err := e.UpdateDynamicTrailingStop(context.Background(), pos, domain.MarketSignals{Price: 113, ATRPercent: 1})
	require.NoError(t, err)
	assert.True(t, moved)

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.Equal(t, domain.TrailAggressive, pos.Trailing.TrailType)
}

func TestUpdateDynamicTrailingStop_MonotonicAndAdaptive(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	ctx := context.Background()

	step := func(price, atr float64) (bool, domain.Position) {
		t.Helper()
		pos, err := e.Ledger().Find("BTCUSDT", "a")
		require.NoError(t, err)
		moved, err := e.UpdateDynamicTrailingStop(ctx, pos, domain.MarketSignals{Symbol: "BTCUSDT", Price: price, ATRPercent: atr})
		require.NoError(t, err)
		pos, err = e.Ledger().Find("BTCUSDT", "a")
		require.NoError(t, err)
		return moved, pos
	}

	moved, pos := step(100.5, 1)
	assert.False(t, moved, "below activation")
	assert.False(t, pos.Trailing.Active)

	moved, pos = step(102, 1)
	assert.True(t, moved)
	assert.Equal(t, domain.TrailTight, pos.Trailing.TrailType)
	assert.InDelta(t, 100.47, pos.StopPrice, 1e-9)
	assert.InDelta(t, 100.47, pos.Trailing.CurrentStopPrice, 1e-9)
	assert.InDelta(t, 102, pos.Trailing.HighestFavorablePrice, 1e-9)
	assert.Contains(t, f.cancelled, "stop-a")

	moved, pos = step(101.5, 1)
	assert.False(t, moved)
	assert.InDelta(t, 100.47, pos.StopPrice, 1e-9)

	moved, pos = step(104, 1)
	assert.True(t, moved)
	assert.InDelta(t, 102.44, pos.StopPrice, 1e-9)

	moved, pos = step(104.5, 5)
	assert.False(t, moved, "a wider trail never loosens the stop")
	assert.Equal(t, domain.TrailWide, pos.Trailing.TrailType)
	assert.InDelta(t, 102.44, pos.StopPrice, 1e-9)
}

func TestUpdateDynamicTrailingStop_StopPlacementFailureRestoresOldStop(t *testing.T) {
	f := newFake(100)
	f.stopErr = &domain.ExchangeRejectError{Op: "stop", Code: -1111, Reason: "precision"}
	f.stopErrOnce = true
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	moved, err := e.UpdateDynamicTrailingStop(context.Background(), pos, domain.MarketSignals{Price: 102, ATRPercent: 1})
	require.Error(t, err)
	assert.False(t, moved)

	stops := f.ordersOf("stop")
	require.Len(t, stops, 1)
	assert.InDelta(t, 97, stops[0].Price, 1e-9)

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.InDelta(t, 97, pos.StopPrice, 1e-9)
	assert.Equal(t, stops[0].ID, pos.StopOrderID)
}

func TestExecuteTieredExit_Partial60MovesStopToBreakeven(t *testing.T) {
	f := newFake(104)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	res, err := e.ExecuteTieredExit(context.Background(), pos, domain.ExitSignal{
		Action:     domain.ExitPartial60,
		Confidence: 65,
		Reasons:    []string{"profit protection"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, res.Quantity, 1e-12)
	assert.InDelta(t, 0.4, res.RemainingQuantity, 1e-12)
	assert.InDelta(t, 100.1, res.NewStop, 1e-9)

	market := f.ordersOf("market")
	require.Len(t, market, 1)
	assert.True(t, market[0].ReduceOnly)
	assert.Equal(t, domain.SideShort, market[0].Side)

	got, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.RemainingQuantity, 1e-12)
	assert.InDelta(t, 100.1, got.StopPrice, 1e-9)
	require.Len(t, got.PartialExits, 1)
	assert.InDelta(t, 0.6, got.PartialExits[0].FractionClosed, 1e-12)
	assert.Contains(t, got.PartialExits[0].Reason, "PARTIAL_60")

	assert.Subset(t, f.cancelled, []string{"stop-a", "tp1-a", "tp2-a", "tp3-a"})
	tps := f.ordersOf("tp")
	require.Len(t, tps, 3)
	assert.InDelta(t, 0.12, tps[0].Qty, 1e-9)
	assert.InDelta(t, 0.16, tps[1].Qty, 1e-9)
	assert.InDelta(t, 0.12, tps[2].Qty, 1e-9)
	for i, tier := range got.TPTiers {
		assert.Equal(t, tps[i].ID, tier.OrderID)
	}
}

func TestExecuteTieredExit_Partial40TrailsCloseToMark(t *testing.T) {
	f := newFake(104)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	res, err := e.ExecuteTieredExit(context.Background(), pos, domain.ExitSignal{Action: domain.ExitPartial40})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Quantity, 1e-12)
	assert.InDelta(t, 0.6, res.RemainingQuantity, 1e-12)
	assert.InDelta(t, 102.96, res.NewStop, 1e-9)
}

func TestExecuteTieredExit_NoneAndFull(t *testing.T) {
	f := newFake(104)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	res, err := e.ExecuteTieredExit(context.Background(), pos, domain.ExitSignal{Action: domain.ExitNone})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.RemainingQuantity, 1e-12)
	assert.Empty(t, f.orders)

	res, err = e.ExecuteTieredExit(context.Background(), pos, domain.ExitSignal{Action: domain.ExitFull, Confidence: 100})
	require.NoError(t, err)
	require.NotNil(t, res.Closed)
	assert.InDelta(t, 12, res.PnLPercent, 1e-9)
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestExecuteTieredExit_BelowMinimumClosesWholePosition(t *testing.T) {
	f := newFake(104)
	f.rules.MinNotional = 50
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	res, err := e.ExecuteTieredExit(context.Background(), pos, domain.ExitSignal{Action: domain.ExitPartial40})
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Quantity, 1e-12)
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestClosePosition_ClosesEveryPositionOnSymbol(t *testing.T) {
	f := newFake(110)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	pyr := domain.Position{
		ID:                "b",
		Symbol:            "BTCUSDT",
		Side:              domain.SideLong,
		EntryPrice:        104,
		OriginalQuantity:  0.5,
		RemainingQuantity: 0.5,
		Leverage:          3,
	}
	require.NoError(t, e.Ledger().Add(pyr))

	res, err := e.ClosePosition(context.Background(), "BTCUSDT", "manual")
	require.NoError(t, err)
	assert.InDelta(t, 110, res.ExitPrice, 1e-9)
	assert.InDelta(t, 1.5, res.Quantity, 1e-12)
	assert.InDelta(t, 13, res.PnLDollars, 1e-9)
	require.Len(t, res.Closed, 2)
	assert.InDelta(t, 30, res.Closed[0].PnLPercent, 1e-9)

	market := f.ordersOf("market")
	require.Len(t, market, 1)
	assert.True(t, market[0].ReduceOnly)
	assert.Equal(t, domain.SideShort, market[0].Side)
	assert.Equal(t, []string{"BTCUSDT"}, f.cancelAll)
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestClosePosition_ShortPnLIsLeveraged(t *testing.T) {
	f := newFake(95)
	e := newTestExecutor(f)
	p := domain.Position{
		ID:                "s",
		Symbol:            "ETHUSDT",
		Side:              domain.SideShort,
		EntryPrice:        100,
		OriginalQuantity:  2,
		RemainingQuantity: 2,
		Leverage:          5,
	}
	require.NoError(t, e.Ledger().Add(p))

	res, err := e.ClosePosition(context.Background(), "ETHUSDT", "exit")
	require.NoError(t, err)
	assert.InDelta(t, 25, res.PnLPercent, 1e-9)
	assert.InDelta(t, 10, res.PnLDollars, 1e-9)
	assert.Equal(t, domain.SideLong, f.ordersOf("market")[0].Side)
}

func TestClosePosition_VenueOnlyPosition(t *testing.T) {
	f := newFake(100)
	f.info = domain.ExchangePosition{Symbol: "BTCUSDT", Amount: -0.5, EntryPrice: 101}
	e := newTestExecutor(f)

	res, err := e.ClosePosition(context.Background(), "BTCUSDT", "orphan")
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	market := f.ordersOf("market")
	require.Len(t, market, 1)
	assert.Equal(t, domain.SideLong, market[0].Side)
	assert.InDelta(t, 0.5, market[0].Qty, 1e-12)

	f.info = domain.ExchangePosition{Symbol: "BTCUSDT"}
	_, err = e.ClosePosition(context.Background(), "BTCUSDT", "orphan")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestClosePosition_OrderFailureKeepsLedger(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	f.marketErr = &domain.ExchangeRejectError{Op: "market", Code: -2022, Reason: "reduce only rejected"}

	_, err := e.ClosePosition(context.Background(), "BTCUSDT", "exit")
	require.Error(t, err)
	assert.True(t, domain.IsReject(err))
	assert.Equal(t, 1, e.Ledger().Count())
}

func TestClosePositionByID_LeavesOtherSlot(t *testing.T) {
	f := newFake(110)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)
	addPos(t, e, "b", 0.5, 80)

	cp, err := e.ClosePositionByID(context.Background(), "BTCUSDT", "b", "pyramid exit")
	require.NoError(t, err)
	assert.Equal(t, "b", cp.Position.ID)
	assert.InDelta(t, 0.5, cp.Quantity, 1e-12)
	assert.Subset(t, f.cancelled, []string{"stop-b", "tp1-b", "tp2-b", "tp3-b"})
	assert.NotContains(t, f.cancelled, "stop-a")
	assert.Empty(t, f.cancelAll)

	left := e.Ledger().Get("BTCUSDT")
	require.Len(t, left, 1)
	assert.Equal(t, "a", left[0].ID)
}

func TestCloseAll_SweepsLedgerAndExtraSymbols(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	addPos(t, e, "a", 1, 80)

	results, err := e.CloseAll(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, "shutdown")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "BTCUSDT", results[0].Symbol)
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestLockQuickProfit(t *testing.T) {
	f := newFake(101)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 65)

	locked, err := e.LockQuickProfit(context.Background(), pos, 101)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Contains(t, f.cancelled, "stop-a")

	pos, err = e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.True(t, pos.ProfitLocked)
	assert.InDelta(t, 100.1, pos.StopPrice, 1e-9)

	locked, err = e.LockQuickProfit(context.Background(), pos, 103)
	require.NoError(t, err)
	assert.False(t, locked, "runs once per position")
}

func TestLockQuickProfit_HighConfidenceSkipped(t *testing.T) {
	f := newFake(101)
	e := newTestExecutor(f)
	pos := addPos(t, e, "a", 1, 80)

	locked, err := e.LockQuickProfit(context.Background(), pos, 101)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Empty(t, f.orders)
}

func TestCloseStalePositions(t *testing.T) {
	f := newFake(100.05)
	e := newTestExecutor(f)
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0 }
	addPos(t, e, "a", 1, 80)
	marks := map[string]float64{"BTCUSDT": 100.05}

	closed, err := e.CloseStalePositions(context.Background(), marks, 20*time.Minute, 0.3)
	require.NoError(t, err)
	assert.Empty(t, closed)
	pos, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	require.NotNil(t, pos.FlatSince)

	e.now = func() time.Time { return t0.Add(10 * time.Minute) }
	closed, err = e.CloseStalePositions(context.Background(), marks, 20*time.Minute, 0.3)
	require.NoError(t, err)
	assert.Empty(t, closed)

	e.now = func() time.Time { return t0.Add(21 * time.Minute) }
	closed, err = e.CloseStalePositions(context.Background(), marks, 20*time.Minute, 0.3)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Contains(t, closed[0].Reason, "stale")
	assert.Equal(t, 0, e.Ledger().Count())
}

func TestCloseStalePositions_MoveResetsClock(t *testing.T) {
	f := newFake(100)
	e := newTestExecutor(f)
	t0 := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return t0 }
	addPos(t, e, "a", 1, 80)

	_, err := e.CloseStalePositions(context.Background(), map[string]float64{"BTCUSDT": 100}, 20*time.Minute, 0.3)
	require.NoError(t, err)

	e.now = func() time.Time { return t0.Add(30 * time.Minute) }
	closed, err := e.CloseStalePositions(context.Background(), map[string]float64{"BTCUSDT": 101}, 20*time.Minute, 0.3)
	require.NoError(t, err)
	assert.Empty(t, closed)
	pos, err := e.Ledger().Find("BTCUSDT", "a")
	require.NoError(t, err)
	assert.Nil(t, pos.FlatSince)
}

func TestSnapHelpers(t *testing.T) {
	assert.InDelta(t, 0.015, floorToStep(0.0159, 0.001), 1e-12)
	assert.InDelta(t, 0.016, ceilToStep(0.0151, 0.001), 1e-12)
	assert.InDelta(t, 100.47, roundToStep(100.4701, 0.01), 1e-12)
	assert.InDelta(t, 3.0, floorToStep(3.7, 1), 1e-12)
	assert.InDelta(t, 1.234, floorToStep(1.234, 0), 1e-12)
	assert.Equal(t, 0.3, floorToStep(0.3, 0.001))
	assert.Equal(t, 0.7, ceilToStep(0.7, 0.1))
	assert.Equal(t, 0.28, subQty(0.4, 0.12))
	assert.False(t, exceeds(0.3, 0.1+0.2))
}

func TestTradable_ExactMinimums(t *testing.T) {
	rules := domain.TradingRules{QuantityStep: 0.001, MinQuantity: 0.001, MinNotional: 5}
	assert.True(t, tradable(rules, 0.05, 100))
	assert.True(t, tradable(rules, 0.07, 71.42857142857143))
	assert.False(t, tradable(rules, 0.049, 100))
	assert.False(t, tradable(rules, 0.0009, 1e6))
	assert.InDelta(t, 0.05, minTradable(rules, 100), 1e-12)
	assert.InDelta(t, 0.017, minTradable(rules, 300), 1e-12)
}
