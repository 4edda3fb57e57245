// Package tradelog appends decisions, trades, performance snapshots and
// errors to line-delimited JSON files and fans them out to the optional
// stores and event bus. It also keeps the in-memory history the status API
// and reports read.
package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// File names inside the log directory.
const (
	DecisionsFile   = "decisions.jsonl"
	TradesFile      = "trades.jsonl"
	PerformanceFile = "performance.jsonl"
	ErrorsFile      = "errors.jsonl"
)

const (
	maxDecisions = 500
	maxSnapshots = 50000
	maxErrors    = 200
)

// Config holds journal parameters. PeriodsPerYear annualizes the Sharpe
// ratio and should match the snapshot cadence.
type Config struct {
	Dir            string
	InitialCapital float64
	PeriodsPerYear float64
}

// Sinks are optional secondary destinations. Nil members are skipped;
// failures are logged and never fail the journal write.
type Sinks struct {
	Trades    domain.TradeStore
	Decisions domain.DecisionStore
	Snapshots domain.SnapshotStore
	Audit     domain.AuditStore
	Bus       domain.SignalBus
}

// Journal is safe for concurrent use.
type Journal struct {
	cfg    Config
	sinks  Sinks
	logger *slog.Logger
	start  time.Time

	mu        sync.Mutex
	files     map[string]*os.File
	trades    []domain.TradeRecord
	decisions []DecisionEntry
	snapshots []domain.PerformanceSnapshot
	errs      []ErrorEntry
}

// New opens (creating if needed) the four log files under cfg.Dir.
func New(cfg Config, sinks Sinks, logger *slog.Logger) (*Journal, error) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("tradelog: mkdir %s: %w", cfg.Dir, err)
	}
	j := &Journal{
		cfg:    cfg,
		sinks:  sinks,
		logger: logger.With(slog.String("component", "tradelog")),
		start:  time.Now().UTC(),
		files:  make(map[string]*os.File, 4),
	}
	for _, name := range []string{DecisionsFile, TradesFile, PerformanceFile, ErrorsFile} {
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("tradelog: open %s: %w", name, err)
		}
		j.files[name] = f
	}
	return j, nil
}

// Dir returns the log directory.
func (j *Journal) Dir() string { return j.cfg.Dir }

// Close closes the log files.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var first error
	for name, f := range j.files {
		if err := f.Close(); err != nil && first == nil {
			first = fmt.Errorf("tradelog: close %s: %w", name, err)
		}
		delete(j.files, name)
	}
	return first
}

// RecordDecision logs an oracle decision with the market context it was made
// in and what the cycle did with it.
func (j *Journal) RecordDecision(ctx context.Context, d domain.Decision, sig domain.MarketSignals, outcome string) error {
	e := DecisionEntry{
		Decision:    d,
		MarketPrice: sig.Price,
		Regime:      sig.Regime,
		Outcome:     outcome,
		Timestamp:   time.Now().UTC(),
	}

	j.mu.Lock()
	err := j.appendLocked(DecisionsFile, e)
	j.decisions = appendCapped(j.decisions, e, maxDecisions)
	j.mu.Unlock()
	if err != nil {
		return err
	}

	if j.sinks.Decisions != nil {
		if err := j.sinks.Decisions.Insert(ctx, d); err != nil {
			j.warn(ctx, "decision store insert failed", err)
		}
	}
	j.publish(ctx, domain.ChannelDecisions, "decision", e)
	return nil
}

// RecordTrade logs a trade lifecycle event.
func (j *Journal) RecordTrade(ctx context.Context, rec domain.TradeRecord) error {
	j.mu.Lock()
	err := j.appendLocked(TradesFile, rec)
	j.trades = append(j.trades, rec)
	j.mu.Unlock()
	if err != nil {
		return err
	}

	if j.sinks.Trades != nil {
		if err := j.sinks.Trades.Insert(ctx, rec); err != nil {
			j.warn(ctx, "trade store insert failed", err)
		}
	}
	if j.sinks.Audit != nil {
		if err := j.sinks.Audit.Log(ctx, "trade_"+string(rec.Event), map[string]any{
			"position_id": rec.PositionID,
			"symbol":      rec.Symbol,
			"side":        rec.Side,
			"quantity":    rec.Quantity,
			"pnl":         rec.PnLDollars,
			"reason":      rec.Reason,
		}); err != nil {
			j.warn(ctx, "audit log failed", err)
		}
	}
	j.publish(ctx, domain.ChannelTrades, "trade", rec)
	if j.sinks.Bus != nil {
		if payload, err := json.Marshal(rec); err == nil {
			if err := j.sinks.Bus.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
				j.warn(ctx, "trade stream append failed", err)
			}
		}
	}
	return nil
}

// RecordSnapshot logs one equity-curve point.
func (j *Journal) RecordSnapshot(ctx context.Context, s domain.PerformanceSnapshot) error {
	line := struct {
		domain.PerformanceSnapshot
		TotalReturn float64 `json:"total_return_percent"`
	}{PerformanceSnapshot: s, TotalReturn: j.totalReturn(s.TotalValue)}

	j.mu.Lock()
	err := j.appendLocked(PerformanceFile, line)
	j.snapshots = appendCapped(j.snapshots, s, maxSnapshots)
	j.mu.Unlock()
	if err != nil {
		return err
	}

	if j.sinks.Snapshots != nil {
		if err := j.sinks.Snapshots.InsertSnapshot(ctx, s); err != nil {
			j.warn(ctx, "snapshot store insert failed", err)
		}
	}
	j.publish(ctx, domain.ChannelStatus, "snapshot", s)
	return nil
}

// RecordError logs an error with context. It never fails: a journal that
// cannot write errors has nowhere left to report them but slog.
func (j *Journal) RecordError(ctx context.Context, err error, fields map[string]any) {
	e := NewErrorEntry(err, fields, time.Now())
	j.mu.Lock()
	werr := j.appendLocked(ErrorsFile, e)
	j.errs = appendCapped(j.errs, e, maxErrors)
	j.mu.Unlock()
	if werr != nil {
		j.warn(ctx, "error log write failed", werr)
	}
}

// Trades returns the trade records of this run, newest last.
func (j *Journal) Trades() []domain.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.TradeRecord(nil), j.trades...)
}

// Decisions returns up to n of the most recent decisions, newest last.
func (j *Journal) Decisions(n int) []DecisionEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return tail(j.decisions, n)
}

// Snapshots returns up to n of the most recent snapshots, newest last.
func (j *Journal) Snapshots(n int) []domain.PerformanceSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return tail(j.snapshots, n)
}

// Errors returns up to n of the most recent errors, newest last.
func (j *Journal) Errors(n int) []ErrorEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return tail(j.errs, n)
}

// Metrics computes performance metrics over this run.
func (j *Journal) Metrics() Metrics {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ComputeMetrics(j.trades, j.snapshots, j.cfg.InitialCapital, j.cfg.PeriodsPerYear)
}

// Runtime returns the time since the journal was opened.
func (j *Journal) Runtime() time.Duration {
	return time.Since(j.start)
}

// WriteFinalReport renders the final report to final_report.txt and returns
// it.
func (j *Journal) WriteFinalReport() (string, error) {
	report := FinalReport(j.Metrics(), j.cfg.InitialCapital, j.Runtime())
	path := filepath.Join(j.cfg.Dir, "final_report.txt")
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return report, fmt.Errorf("tradelog: write final report: %w", err)
	}
	return report, nil
}

func (j *Journal) totalReturn(value float64) float64 {
	if j.cfg.InitialCapital <= 0 {
		return 0
	}
	return (value - j.cfg.InitialCapital) / j.cfg.InitialCapital * 100
}

func (j *Journal) appendLocked(name string, v any) error {
	f, ok := j.files[name]
	if !ok {
		return fmt.Errorf("tradelog: %s: journal closed", name)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("tradelog: marshal %s entry: %w", name, err)
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("tradelog: append %s: %w", name, err)
	}
	return nil
}

func (j *Journal) publish(ctx context.Context, channel, event string, data any) {
	if j.sinks.Bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return
	}
	if err := j.sinks.Bus.Publish(ctx, channel, payload); err != nil {
		j.warn(ctx, "publish failed", err)
	}
}

func (j *Journal) warn(ctx context.Context, msg string, err error) {
	j.logger.WarnContext(ctx, msg, slog.String("error", err.Error()))
}

func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}

func tail[T any](s []T, n int) []T {
	if n <= 0 || n > len(s) {
		n = len(s)
	}
	return append([]T(nil), s[len(s)-n:]...)
}
