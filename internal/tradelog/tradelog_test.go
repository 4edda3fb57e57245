package tradelog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type memTrades struct {
	recs []domain.TradeRecord
	err  error
}

func (m *memTrades) Insert(_ context.Context, r domain.TradeRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, r)
	return nil
}

func (m *memTrades) InsertBatch(ctx context.Context, rs []domain.TradeRecord) error {
	for _, r := range rs {
		if err := m.Insert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memTrades) List(context.Context, domain.ListOpts) ([]domain.TradeRecord, error) {
	return m.recs, nil
}

type memBus struct {
	published map[string]int
	streamed  int
}

func (b *memBus) Publish(_ context.Context, channel string, _ []byte) error {
	if b.published == nil {
		b.published = make(map[string]int)
	}
	b.published[channel]++
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(context.Context, string, []byte) error {
	b.streamed++
	return nil
}

func (b *memBus) StreamTail(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testPosition() domain.Position {
	return domain.Position{
		ID:                "p1",
		Symbol:            "BTCUSDT",
		Side:              domain.SideShort,
		EntryPrice:        100,
		OriginalQuantity:  2,
		RemainingQuantity: 2,
		Leverage:          5,
		EntryTime:         time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Confidence:        72,
		Regime:            domain.RegimeStrongTrendDown,
		Strategy:          domain.StrategyTrendFollowing,
	}
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func newJournal(t *testing.T, sinks Sinks) *Journal {
	t.Helper()
	j, err := New(Config{Dir: t.TempDir(), InitialCapital: 1000, PeriodsPerYear: 365}, sinks,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestExitRecord_ShortPnL(t *testing.T) {
	p := testPosition()
	at := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	rec := ExitRecord(p, domain.TradeClose, 2, 95, "take profit", at)

	assert.Equal(t, domain.TradeClose, rec.Event)
	assert.Equal(t, "p1", rec.PositionID)
	assert.InDelta(t, 10, rec.PnLDollars, 1e-9)
	assert.InDelta(t, 25, rec.PnLPercent, 1e-9, "5% move at 5x")
	assert.Equal(t, p.EntryTime, rec.OpenedAt)
	assert.Equal(t, at, rec.Timestamp)
	assert.NotEqual(t, OpenRecord(p, "").ID, rec.ID)
}

func TestExitRecord_JSONRoundTrip(t *testing.T) {
	p := testPosition()
	rec := ExitRecord(p, domain.TradeClose, 2, 95, "take profit", time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC))

	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	var got domain.TradeRecord
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, p.Symbol, got.Symbol)
	assert.Equal(t, p.Side, got.Side)
	assert.Equal(t, p.EntryPrice, got.EntryPrice)
	assert.Equal(t, 2.0, got.Quantity)
	assert.Equal(t, rec.PnLPercent, got.PnLPercent)
	assert.InDelta(t, p.PnLPercent(95), got.PnLPercent, 1e-12)
	assert.Equal(t, rec.ID, got.ID)
}

func TestJournal_AppendsJSONLines(t *testing.T) {
	trades := &memTrades{}
	bus := &memBus{}
	j := newJournal(t, Sinks{Trades: trades, Bus: bus})
	ctx := context.Background()
	p := testPosition()

	require.NoError(t, j.RecordTrade(ctx, OpenRecord(p, "breakdown")))
	require.NoError(t, j.RecordTrade(ctx, ExitRecord(p, domain.TradeClose, 2, 97, "exit", time.Now())))

	d := domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionShort, Confidence: 72, Strategy: domain.StrategyBreakout}
	require.NoError(t, j.RecordDecision(ctx, d, domain.MarketSignals{Price: 100, Regime: domain.RegimeBreakoutDown}, "opened"))
	require.NoError(t, j.RecordSnapshot(ctx, domain.PerformanceSnapshot{TotalValue: 1100}))
	j.RecordError(ctx, &domain.ValidationError{Field: "confidence", Reason: "out of range"}, map[string]any{"symbol": "BTCUSDT"})

	tl := readLines(t, filepath.Join(j.Dir(), TradesFile))
	require.Len(t, tl, 2)
	assert.Equal(t, "OPEN", tl[0]["event"])
	assert.Equal(t, "STRONG_TREND_DOWN", tl[0]["regime"])
	assert.Equal(t, "TREND_FOLLOWING", tl[0]["strategy"])
	assert.InDelta(t, 6, tl[1]["pnl_dollars"], 1e-9)

	dl := readLines(t, filepath.Join(j.Dir(), DecisionsFile))
	require.Len(t, dl, 1)
	assert.Equal(t, "SHORT", dl[0]["action"])
	assert.Equal(t, "BREAKOUT_DOWN", dl[0]["market_regime"])
	assert.Equal(t, "opened", dl[0]["execution_result"])

	pl := readLines(t, filepath.Join(j.Dir(), PerformanceFile))
	require.Len(t, pl, 1)
	assert.InDelta(t, 10, pl[0]["total_return_percent"], 1e-9)

	el := readLines(t, filepath.Join(j.Dir(), ErrorsFile))
	require.Len(t, el, 1)
	assert.Equal(t, "*domain.ValidationError", el[0]["error_type"])
	assert.True(t, strings.Contains(el[0]["error_message"].(string), "confidence"))

	assert.Len(t, trades.recs, 2)
	assert.Equal(t, 2, bus.published[domain.ChannelTrades])
	assert.Equal(t, 1, bus.published[domain.ChannelDecisions])
	assert.Equal(t, 1, bus.published[domain.ChannelStatus])
	assert.Equal(t, 2, bus.streamed)

	assert.Len(t, j.Decisions(10), 1)
	assert.Len(t, j.Errors(0), 1)
}

func TestJournal_SinkFailureDoesNotFailWrite(t *testing.T) {
	j := newJournal(t, Sinks{Trades: &memTrades{err: errors.New("db down")}})
	require.NoError(t, j.RecordTrade(context.Background(), OpenRecord(testPosition(), "")))
	assert.Len(t, j.Trades(), 1)
}

func TestJournal_ClosedRejectsWrites(t *testing.T) {
	j := newJournal(t, Sinks{})
	require.NoError(t, j.Close())
	assert.Error(t, j.RecordTrade(context.Background(), OpenRecord(testPosition(), "")))
}

func TestJournal_FinalReport(t *testing.T) {
	j := newJournal(t, Sinks{})
	ctx := context.Background()
	require.NoError(t, j.RecordSnapshot(ctx, domain.PerformanceSnapshot{TotalValue: 1000}))
	require.NoError(t, j.RecordSnapshot(ctx, domain.PerformanceSnapshot{TotalValue: 1200}))

	report, err := j.WriteFinalReport()
	require.NoError(t, err)
	assert.Contains(t, report, "Total Return:          20.00%")
	b, err := os.ReadFile(filepath.Join(j.Dir(), "final_report.txt"))
	require.NoError(t, err)
	assert.Equal(t, report, string(b))
}

func TestComputeMetrics(t *testing.T) {
	trades := []domain.TradeRecord{
		{Event: domain.TradeOpen},
		{Event: domain.TradeClose, PnLDollars: 30},
		{Event: domain.TradePartial, PnLDollars: 10},
		{Event: domain.TradeClose, PnLDollars: -20},
	}
	snaps := []domain.PerformanceSnapshot{
		{TotalValue: 1000}, {TotalValue: 1100}, {TotalValue: 990}, {TotalValue: 1050},
	}
	m := ComputeMetrics(trades, snaps, 1000, 365)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.Wins)
	assert.InDelta(t, 66.666, m.WinRate, 0.01)
	assert.Equal(t, 20.0, m.AvgWin)
	assert.Equal(t, 20.0, m.AvgLoss)
	assert.Equal(t, 2.0, m.ProfitFactor)
	assert.Equal(t, 20.0, m.RealizedPnL)
	assert.InDelta(t, 10, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 5, m.TotalReturn, 1e-9)
	assert.NotZero(t, m.Sharpe)
}

func TestComputeMetrics_Degenerate(t *testing.T) {
	m := ComputeMetrics(nil, nil, 1000, 365)
	assert.Equal(t, Metrics{}, m)

	m = ComputeMetrics([]domain.TradeRecord{{Event: domain.TradeClose, PnLDollars: 15}}, nil, 1000, 365)
	assert.Equal(t, 15.0, m.ProfitFactor, "no losses: gross win")
	assert.Equal(t, 100.0, m.WinRate)
}

func TestDailyReport(t *testing.T) {
	r := DailyReport(3, Metrics{TotalReturn: 4, MaxDrawdown: 8}, 50*time.Hour+5*time.Minute)
	assert.Contains(t, r, "DAY 3")
	assert.Contains(t, r, "2d 2h 5m")
	assert.Contains(t, r, "ON TRACK")
}
