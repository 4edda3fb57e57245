package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

type fakeAgent struct {
	healthy bool
	risk    domain.RiskState
	resets  int
}

func (a *fakeAgent) Status() orchestrator.Status {
	return orchestrator.Status{Cycle: 12, Day: 3, TotalDays: 14, Risk: a.risk}
}

func (a *fakeAgent) Health() orchestrator.HealthStatus {
	return orchestrator.HealthStatus{Healthy: a.healthy, LoopRunning: a.healthy, ErrorRateOK: true}
}

func (a *fakeAgent) Positions() []orchestrator.PositionStatus {
	return []orchestrator.PositionStatus{
		{Position: domain.Position{ID: "p1", Symbol: "BTCUSDT", Side: domain.SideLong}, Mark: 101},
		{Position: domain.Position{ID: "p2", Symbol: "ETHUSDT", Side: domain.SideShort}, Mark: 99},
	}
}

func (a *fakeAgent) ResetHalt(context.Context) domain.RiskState {
	a.resets++
	a.risk.Halted = false
	return a.risk
}

type fakeJournal struct {
	trades []domain.TradeRecord
}

func (j *fakeJournal) Trades() []domain.TradeRecord { return j.trades }

func (j *fakeJournal) Decisions(int) []tradelog.DecisionEntry {
	return []tradelog.DecisionEntry{
		{Decision: domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionHold}, Outcome: "hold", Timestamp: time.Now()},
	}
}

func (j *fakeJournal) Snapshots(int) []domain.PerformanceSnapshot {
	return []domain.PerformanceSnapshot{{Timestamp: time.Now(), TotalValue: 1000}}
}

func (j *fakeJournal) Errors(int) []tradelog.ErrorEntry { return nil }

func (j *fakeJournal) Metrics() tradelog.Metrics { return tradelog.Metrics{TotalTrades: 2, WinRate: 0.5} }

type failingTrades struct{}

func (failingTrades) Insert(context.Context, domain.TradeRecord) error        { return nil }
func (failingTrades) InsertBatch(context.Context, []domain.TradeRecord) error { return nil }
func (failingTrades) List(context.Context, domain.ListOpts) ([]domain.TradeRecord, error) {
	return nil, errors.New("db down")
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyLimiter) Wait(context.Context, string, int, time.Duration) error         { return nil }

type memReader struct {
	objects map[string]string
}

func (m *memReader) Open(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (m *memReader) List(_ context.Context, prefix string, limit int) ([]domain.ArchivedObject, error) {
	var out []domain.ArchivedObject
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.ArchivedObject{Key: k, Size: int64(len(v))})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var archiveFixture = map[string]string{
	"logs/runs/20260315T083000Z/trades.jsonl":         "{}\n",
	"logs/reports/final_report-20260315T083000Z.json": `{"win_rate":0.5}`,
	"secrets/binance.json":                            "nope",
}

type memAudit struct {
	events []string
	opts   domain.ListOpts
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.opts = opts
	out := make([]domain.AuditEntry, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.events[i], opts.Event) {
			out = append(out, domain.AuditEntry{ID: int64(i + 1), Event: m.events[i]})
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, agent *fakeAgent, journal *fakeJournal, cfg Config, limiter domain.RateLimiter, audit domain.AuditStore) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Handlers{
		Health:      handler.NewHealthHandler(agent),
		Status:      handler.NewStatusHandler(agent, "paper", map[string]string{"mode": "paper"}),
		Positions:   handler.NewPositionHandler(agent),
		Trades:      handler.NewTradeHandler(journal, failingTrades{}, logger),
		Decisions:   handler.NewDecisionHandler(journal, nil, logger),
		Performance: handler.NewPerformanceHandler(journal, nil, logger),
		Risk:        handler.NewRiskHandler(agent, audit, logger),
		Archives:    handler.NewArchiveHandler(&memReader{objects: archiveFixture}, "logs", logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("futuresbot_cycles_total 1\n"))
		}),
	}
	return NewServer(cfg, h, nil, limiter, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthReflectsLoop(t *testing.T) {
	agent := &fakeAgent{healthy: true}
	h := newTestServer(t, agent, &fakeJournal{}, Config{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	agent.healthy = false
	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestAuthProtectsAPIOnly(t *testing.T) {
	h := newTestServer(t, &fakeAgent{healthy: true}, &fakeJournal{}, Config{APIKey: "secret"}, nil, nil)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", map[string]string{"X-API-Key": "nope"}).Code)

	rec := do(t, h, http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "paper", body["mode"])
	assert.EqualValues(t, 12, body["status"].(map[string]any)["cycle"])
}

func TestPositionsFilterBySymbol(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, &fakeJournal{}, Config{}, nil, nil)
	rec := do(t, h, http.MethodGet, "/api/positions?symbol=ethusdt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	positions := decode(t, rec)["positions"].([]any)
	require.Len(t, positions, 1)
	assert.Equal(t, "p2", positions[0].(map[string]any)["id"])
}

func TestTradesFallBackToJournal(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	journal := &fakeJournal{trades: []domain.TradeRecord{
		{ID: "t1", Symbol: "BTCUSDT", Timestamp: base},
		{ID: "t2", Symbol: "ETHUSDT", Timestamp: base.Add(time.Hour)},
		{ID: "t3", Symbol: "BTCUSDT", Timestamp: base.Add(2 * time.Hour)},
	}}
	h := newTestServer(t, &fakeAgent{}, journal, Config{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/trades?symbol=BTCUSDT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "journal", body["source"])
	trades := body["trades"].([]any)
	require.Len(t, trades, 2)
	assert.Equal(t, "t3", trades[0].(map[string]any)["id"])

	rec = do(t, h, http.MethodGet, "/api/trades?since=2026-03-01T01:00:00Z&limit=1", nil)
	trades = decode(t, rec)["trades"].([]any)
	require.Len(t, trades, 1)
	assert.Equal(t, "t3", trades[0].(map[string]any)["id"])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/trades?since=yesterday", nil).Code)
}

func TestDecisionsAndPerformance(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, &fakeJournal{}, Config{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/decisions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decisions := decode(t, rec)["decisions"].([]any)
	require.Len(t, decisions, 1)
	assert.Equal(t, "hold", decisions[0].(map[string]any)["execution_result"])

	rec = do(t, h, http.MethodGet, "/api/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["metrics"].(map[string]any)["total_trades"])
	assert.Len(t, body["snapshots"].([]any), 1)
	assert.Empty(t, body["recent_errors"].([]any))
}

func TestRiskResetIsPostOnlyAndAudited(t *testing.T) {
	agent := &fakeAgent{risk: domain.RiskState{Halted: true, Level: domain.BreakerL4}}
	audit := &memAudit{}
	h := newTestServer(t, agent, &fakeJournal{}, Config{}, nil, audit)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/risk/reset", nil).Code)

	rec := do(t, h, http.MethodPost, "/api/risk/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, agent.resets)
	assert.Equal(t, false, decode(t, rec)["risk"].(map[string]any)["halted"])
	assert.Equal(t, []string{"risk.reset"}, audit.events)

	rec = do(t, h, http.MethodGet, "/api/audit?event=risk.&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "risk.reset", entries[0].(map[string]any)["event"])
	assert.Equal(t, "risk.", audit.opts.Event)
	assert.Equal(t, 5, audit.opts.Limit)
}

func TestAuditWithoutStore(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, &fakeJournal{}, Config{}, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/audit", nil).Code)
}

func TestRateLimitAndCORS(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, &fakeJournal{}, Config{RateLimit: 10, CORSOrigins: []string{"https://dash.example"}}, denyLimiter{}, nil)

	rec := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	preflight := map[string]string{"Origin": "https://dash.example", "Access-Control-Request-Method": "GET"}
	rec = do(t, h, http.MethodOptions, "/api/status", preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")

	preflight["Origin"] = "https://evil.example"
	rec = do(t, h, http.MethodOptions, "/api/status", preflight)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestArchives(t *testing.T) {
	h := newTestServer(t, &fakeAgent{}, &fakeJournal{}, Config{}, nil, nil)

	rec := do(t, h, http.MethodGet, "/api/archives?kind=reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "logs/reports/", body["prefix"])
	assert.Len(t, body["objects"], 1)

	rec = do(t, h, http.MethodGet, "/api/archives?kind=secrets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/archives/logs/runs/20260315T083000Z/trades.jsonl", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, "{}\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/archives/logs/runs/missing.jsonl", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/archives/secrets/binance.json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
