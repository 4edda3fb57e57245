package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

type chanBus struct {
	chans   map[string]chan []byte
	history []domain.StreamMessage
}

func newChanBus() *chanBus {
	b := &chanBus{chans: map[string]chan []byte{}}
	for _, ch := range DefaultChannels {
		b.chans[ch] = make(chan []byte, 8)
	}
	return b
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.chans[channel] <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.chans[channel], nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamTail(_ context.Context, _ string, n int) ([]domain.StreamMessage, error) {
	if n < len(b.history) {
		return b.history[len(b.history)-n:], nil
	}
	return b.history, nil
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubBridgesBusToClients(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:         "Paper",
		StatusPeriod: time.Hour,
		Status:       func() any { return map[string]int{"cycle": 7} },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelStatus, env.Channel)
	assert.Equal(t, "bot_status", env.Type)
	assert.Contains(t, string(env.Payload), `"mode":"paper"`)
	assert.Contains(t, string(env.Payload), `"cycle":7`)

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"symbol":"BTCUSDT"}`)))
	env = readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelTrades, env.Channel)
	assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(env.Payload))
}

func TestHubReplaysTradeHistory(t *testing.T) {
	bus := newChanBus()
	bus.history = []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"n":1}`)},
		{ID: "2-0", Payload: []byte(`{"n":2}`)},
		{ID: "3-0", Payload: []byte(`{"n":3}`)},
	}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{StatusPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?replay=2", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "bot_status", readEnvelope(t, conn).Type)
	for _, want := range []string{`{"n":2}`, `{"n":3}`} {
		env := readEnvelope(t, conn)
		assert.Equal(t, domain.ChannelTrades, env.Channel)
		assert.Equal(t, "trade_replay", env.Type)
		assert.JSONEq(t, want, string(env.Payload))
	}
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:*", domain.ChannelTrades}})
	assert.True(t, c.isSubscribed(domain.ChannelAlerts))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:*"}})
	assert.False(t, c.isSubscribed(domain.ChannelAlerts))
	assert.True(t, c.isSubscribed(domain.ChannelTrades))
}

func TestWrapQuotesNonJSON(t *testing.T) {
	frame, err := wrap(domain.ChannelAlerts, "event", []byte("plain text"))
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, `"plain text"`, string(env.Payload))
}
