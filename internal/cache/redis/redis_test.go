package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: DefaultKeyPrefix}
	assert.Equal(t, "futuresbot:price:BTCUSDT", c.key("price", "BTCUSDT"))
	assert.Equal(t, "futuresbot:ch:trades", c.key(domain.ChannelTrades))
}

func TestRedis(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	t.Run("price cache", func(t *testing.T) {
		pc := NewPriceCache(c)
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		_, _, err := pc.GetPrice(ctx, "BTCUSDT")
		require.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, pc.SetPrice(ctx, "BTCUSDT", 64250.5, ts))
		require.NoError(t, pc.SetPrice(ctx, "ETHUSDT", 3120.25, ts))

		price, got, err := pc.GetPrice(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.InDelta(t, 64250.5, price, 1e-9)
		assert.True(t, ts.Equal(got))

		prices, err := pc.GetPrices(ctx, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
		require.NoError(t, err)
		assert.Len(t, prices, 2)
		assert.InDelta(t, 3120.25, prices["ETHUSDT"], 1e-9)
	})

	t.Run("lock", func(t *testing.T) {
		lm := NewLockManager(c)
		unlock, err := lm.Acquire(ctx, "instance", time.Minute)
		require.NoError(t, err)

		_, err = lm.Acquire(ctx, "instance", time.Minute)
		require.ErrorIs(t, err, domain.ErrLockHeld)

		unlock()
		unlock()

		lease, err := lm.AcquireLease(ctx, "instance", time.Minute)
		require.NoError(t, err)
		require.NoError(t, lease.Extend(ctx))
		lease.Release()
		require.ErrorIs(t, lease.Extend(ctx), domain.ErrLockHeld)
	})

	t.Run("rate limiter", func(t *testing.T) {
		rl := NewRateLimiter(c)
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "oracle", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok, "request %d", i)
		}
		ok, err := rl.Allow(ctx, "oracle", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		wctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, rl.Wait(wctx, "oracle", 3, time.Minute), context.DeadlineExceeded)

		require.NoError(t, rl.Wait(ctx, "other", 1, time.Minute))
	})

	t.Run("signal bus", func(t *testing.T) {
		sb := NewSignalBus(c)
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := sb.Subscribe(sctx, domain.ChannelTrades)
		require.NoError(t, err)
		require.NoError(t, sb.Publish(ctx, domain.ChannelTrades, []byte(`{"symbol":"BTCUSDT"}`)))

		select {
		case msg := <-ch:
			assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(msg))
		case <-time.After(5 * time.Second):
			t.Fatal("no message received")
		}

		empty, err := sb.StreamTail(ctx, domain.StreamTrades, 5)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for _, p := range []string{"a", "b", "c"} {
			require.NoError(t, sb.StreamAppend(ctx, domain.StreamTrades, []byte(p)))
		}
		msgs, err := sb.StreamTail(ctx, domain.StreamTrades, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "b", string(msgs[0].Payload))
		assert.Equal(t, "c", string(msgs[1].Payload))
	})
}
