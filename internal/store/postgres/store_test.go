package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// setupTestDB starts a PostgreSQL container and applies the embedded
// migrations.
func setupTestDB(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("futuresbot"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.Migrate(ctx))
	// Applying twice is a no-op.
	require.NoError(t, client.Migrate(ctx))
	return client
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/bot?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "bot"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://bot:p%40ss@db:6432/bot?sslmode=require",
		DSN(ClientConfig{User: "bot", Password: "p@ss", Host: "db", Port: 6432, Database: "bot", SSLMode: "require"}))
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := listQuery("SELECT * FROM trades WHERE 1=1", "ts", domain.ListOpts{
		Symbol: "BTCUSDT",
		Since:  &since,
		Limit:  10,
		Offset: 5,
	})
	assert.Equal(t, "SELECT * FROM trades WHERE 1=1 AND symbol = $1 AND ts >= $2 ORDER BY ts DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"BTCUSDT", since, 10, 5}, args)
}

func TestTradeStore(t *testing.T) {
	client := setupTestDB(t)
	store := NewTradeStore(client.Pool())
	ctx := context.Background()

	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	open := domain.TradeRecord{
		ID: "t-1", PositionID: "p-1", Event: domain.TradeOpen, Symbol: "BTCUSDT",
		Side: domain.SideLong, EntryPrice: 100, Quantity: 2, Leverage: 5, Confidence: 80,
		Regime: domain.RegimeStrongTrendUp, Strategy: domain.StrategyTrendFollowing,
		Reason: "trend", OpenedAt: at, Timestamp: at,
	}
	closeRec := open
	closeRec.ID = "t-2"
	closeRec.Event = domain.TradeClose
	closeRec.ExitPrice = 110
	closeRec.PnLPercent = 50
	closeRec.PnLDollars = 20
	closeRec.Timestamp = at.Add(time.Hour)

	require.NoError(t, store.Insert(ctx, open))
	require.NoError(t, store.InsertBatch(ctx, []domain.TradeRecord{open, closeRec}))

	got, err := store.List(ctx, domain.ListOpts{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t-2", got[0].ID)
	assert.Equal(t, domain.TradeClose, got[0].Event)
	assert.Equal(t, domain.RegimeStrongTrendUp, got[0].Regime)
	assert.Equal(t, domain.StrategyTrendFollowing, got[0].Strategy)
	assert.InDelta(t, 20, got[0].PnLDollars, 1e-9)

	none, err := store.List(ctx, domain.ListOpts{Symbol: "ETHUSDT"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDecisionStore(t *testing.T) {
	client := setupTestDB(t)
	store := NewDecisionStore(client.Pool())
	ctx := context.Background()

	d := domain.Decision{
		Symbol: "ETHUSDT", Action: domain.ActionShort, Confidence: 72, PositionSizePercent: 10,
		Leverage: 3, EntryReason: "breakdown", StopLossPercent: 3, TakeProfitPercent: 12,
		Urgency: domain.UrgencyHigh, Strategy: domain.StrategyBreakout, Source: domain.SourceOracle,
		DecidedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Insert(ctx, d))

	got, err := store.List(ctx, domain.ListOpts{Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionShort, got[0].Action)
	assert.Equal(t, domain.StrategyBreakout, got[0].Strategy)
	assert.Equal(t, domain.UrgencyHigh, got[0].Urgency)
	assert.True(t, d.DecidedAt.Equal(got[0].DecidedAt))
}

func TestAuditStore(t *testing.T) {
	client := setupTestDB(t)
	store := NewAuditStore(client.Pool())
	ctx := context.Background()

	require.NoError(t, store.Log(ctx, "trade_OPEN", map[string]any{"symbol": "BTCUSDT", "quantity": 1.5}))
	require.NoError(t, store.Log(ctx, "breaker_reset", nil))

	require.NoError(t, store.Log(ctx, "trade_CLOSE", map[string]any{"symbol": "BTCUSDT"}))

	got, err := store.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "trade_CLOSE", got[0].Event)
	assert.Nil(t, got[1].Detail)
	assert.Equal(t, 1.5, got[2].Detail["quantity"])

	trades, err := store.List(ctx, domain.ListOpts{Event: "trade_", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "trade_OPEN", trades[0].Event)

	future := time.Now().Add(time.Hour)
	none, err := store.List(ctx, domain.ListOpts{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRiskStateStore(t *testing.T) {
	client := setupTestDB(t)
	store := NewRiskStateStore(client.Pool())
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	until := time.Now().UTC().Add(12 * time.Hour).Truncate(time.Microsecond)
	st := domain.RiskState{
		PeakValue: 120000, CurrentValue: 82000, Level: domain.BreakerL2,
		PausedUntil: &until, PausedLevel: domain.BreakerL2,
		DailyStartValue: 90000, TradesToday: 3, LastResetDate: "2026-02-01",
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Save(ctx, st))

	st.TradesToday = 4
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BreakerL2, got.Level)
	assert.Equal(t, 4, got.TradesToday)
	require.NotNil(t, got.PausedUntil)
	assert.True(t, until.Equal(*got.PausedUntil))
	assert.InDelta(t, 120000, got.PeakValue, 1e-9)
}
