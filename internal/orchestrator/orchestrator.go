// Package orchestrator runs the trading cycle: it refreshes the portfolio,
// feeds the circuit breaker, manages open positions and routes oracle
// decisions through RiskGate to the executor.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/executor"
	"github.com/alanyoungcy/futuresbot/internal/exitpolicy"
	"github.com/alanyoungcy/futuresbot/internal/observability"
	"github.com/alanyoungcy/futuresbot/internal/risk"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// Alert event names passed to the Alerter.
const (
	EventTrade     = "trade"
	EventBreaker   = "circuit_breaker"
	EventError     = "error"
	EventLifecycle = "lifecycle"
)

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds loop parameters. LosingClosePct is a negative leveraged PnL
// below which positions are closed while the breaker blocks entries at L2+.
type Config struct {
	Assets               []string
	Interval             time.Duration
	Start                time.Time
	DurationDays         int
	TimeFilter           risk.TimeFilter
	MaxOpenPositions     int
	CloseOnShutdown      bool
	ShutdownTimeout      time.Duration
	StuckAfter           time.Duration
	MaxConsecutiveErrors int
	LosingClosePct       float64
	StaleAfter           time.Duration
	StaleBandPct         float64
}

// Deps are the collaborators of the loop. Alerts, RiskStore, Prices and
// Archiver are optional.
type Deps struct {
	Exchange  domain.Exchange
	Feed      domain.SignalFeed
	Oracle    domain.DecisionOracle
	Gate      *risk.Gate
	Breaker   *risk.CircuitBreaker
	Executor  *executor.Executor
	Exits     *exitpolicy.Policy
	Journal   *tradelog.Journal
	Metrics   *observability.Metrics
	Alerts    Alerter
	RiskStore domain.RiskStateStore
	Prices    domain.PriceCache
	Archiver  domain.Archiver
	Logger    *slog.Logger
}

// Orchestrator owns the cycle loop. RunCycle is not safe for concurrent use;
// the status accessors are.
type Orchestrator struct {
	cfg       Config
	exch      domain.Exchange
	feed      domain.SignalFeed
	oracle    domain.DecisionOracle
	gate      *risk.Gate
	breaker   *risk.CircuitBreaker
	exec      *executor.Executor
	exits     *exitpolicy.Policy
	journal   *tradelog.Journal
	metrics   *observability.Metrics
	alerts    Alerter
	riskStore domain.RiskStateStore
	prices    domain.PriceCache
	archiver  domain.Archiver
	logger    *slog.Logger
	health    *Health
	now       func() time.Time

	mu          sync.RWMutex
	cycle       int64
	lastCycleAt time.Time
	breakerStat domain.BreakerStatus
	portfolio   domain.Portfolio
	marks       map[string]float64
	healthy     bool
	shutdown    sync.Once
	shutdownErr error
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Exchange == nil:
		return nil, errors.New("orchestrator: exchange is required")
	case deps.Feed == nil:
		return nil, errors.New("orchestrator: signal feed is required")
	case deps.Oracle == nil:
		return nil, errors.New("orchestrator: oracle is required")
	case deps.Gate == nil || deps.Breaker == nil:
		return nil, errors.New("orchestrator: risk gate and breaker are required")
	case deps.Executor == nil || deps.Exits == nil:
		return nil, errors.New("orchestrator: executor and exit policy are required")
	case deps.Journal == nil:
		return nil, errors.New("orchestrator: journal is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = time.Minute
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Orchestrator{
		cfg:       cfg,
		exch:      deps.Exchange,
		feed:      deps.Feed,
		oracle:    deps.Oracle,
		gate:      deps.Gate,
		breaker:   deps.Breaker,
		exec:      deps.Executor,
		exits:     deps.Exits,
		journal:   deps.Journal,
		metrics:   metrics,
		alerts:    deps.Alerts,
		riskStore: deps.RiskStore,
		prices:    deps.Prices,
		archiver:  deps.Archiver,
		logger:    logger.With(slog.String("component", "orchestrator")),
		health:    NewHealth(cfg.StuckAfter, cfg.MaxConsecutiveErrors, now()),
		now:       now,
		marks:     make(map[string]float64),
		healthy:   true,
	}, nil
}

// Run drives RunCycle every Interval until ctx is cancelled or the
// competition window closes, then shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("trading loop started",
		slog.Any("assets", o.cfg.Assets),
		slog.Duration("interval", o.cfg.Interval),
		slog.Int("duration_days", o.cfg.DurationDays),
	)
	o.alert(ctx, EventLifecycle, "Trading started",
		"assets: "+strings.Join(o.cfg.Assets, ",")+", interval: "+o.cfg.Interval.String())

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		if o.CompetitionEnded(o.now()) {
			o.logger.Info("competition window closed")
			return o.Shutdown()
		}
		o.step(ctx)

		select {
		case <-ctx.Done():
			o.logger.Info("trading loop stopping", slog.String("reason", context.Cause(ctx).Error()))
			return o.Shutdown()
		case <-ticker.C:
		}
	}
}

// step runs one cycle and records its outcome.
func (o *Orchestrator) step(ctx context.Context) {
	o.checkHealth(ctx)

	start := o.now()
	err := o.RunCycle(ctx)
	if ctx.Err() != nil {
		return
	}
	end := o.now()
	o.health.Record(err, end)
	hs := o.health.Check(end)
	o.metrics.RecordCycle(end.Sub(start), err, hs.ConsecutiveErrors)

	o.mu.Lock()
	o.cycle++
	o.lastCycleAt = end
	o.mu.Unlock()

	if err != nil {
		o.logger.Error("cycle failed",
			slog.String("error", err.Error()),
			slog.Int("consecutive", hs.ConsecutiveErrors),
		)
		o.journal.RecordError(ctx, err, map[string]any{"stage": "cycle"})
	}
}

// checkHealth alerts once on every healthy to unhealthy transition.
func (o *Orchestrator) checkHealth(ctx context.Context) {
	hs := o.health.Check(o.now())
	o.mu.Lock()
	was := o.healthy
	o.healthy = hs.Healthy
	o.mu.Unlock()
	if was && !hs.Healthy {
		o.logger.Warn("trading loop unhealthy",
			slog.Bool("loop_running", hs.LoopRunning),
			slog.Int("consecutive_errors", hs.ConsecutiveErrors),
		)
		o.alert(ctx, EventError, "Trading loop unhealthy",
			"consecutive cycle errors or no successful cycle recently")
	}
}

// Day returns the 1-based competition day at now.
func (o *Orchestrator) Day(now time.Time) int {
	day := int(now.Sub(o.cfg.Start)/(24*time.Hour)) + 1
	if day < 1 {
		day = 1
	}
	if o.cfg.DurationDays > 0 && day > o.cfg.DurationDays {
		day = o.cfg.DurationDays
	}
	return day
}

// CompetitionEnded reports whether the trading window has closed.
func (o *Orchestrator) CompetitionEnded(now time.Time) bool {
	if o.cfg.DurationDays <= 0 {
		return false
	}
	end := o.cfg.Start.Add(time.Duration(o.cfg.DurationDays) * 24 * time.Hour)
	return !now.Before(end)
}

// Status is a point-in-time view of the agent for the HTTP API.
type Status struct {
	Cycle         int64                `json:"cycle"`
	LastCycleAt   time.Time            `json:"last_cycle_at"`
	Day           int                  `json:"day"`
	TotalDays     int                  `json:"total_days"`
	Health        HealthStatus         `json:"health"`
	Breaker       domain.BreakerStatus `json:"breaker"`
	Risk          domain.RiskState     `json:"risk"`
	Portfolio     domain.Portfolio     `json:"portfolio"`
	OpenPositions int                  `json:"open_positions"`
}

// Status returns the latest agent status.
func (o *Orchestrator) Status() Status {
	now := o.now()
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		Cycle:         o.cycle,
		LastCycleAt:   o.lastCycleAt,
		Day:           o.Day(now),
		TotalDays:     o.cfg.DurationDays,
		Health:        o.health.Check(now),
		Breaker:       o.breakerStat,
		Risk:          o.breaker.State(),
		Portfolio:     o.portfolio,
		OpenPositions: o.exec.Ledger().Count(),
	}
}

// Health returns the loop health at now.
func (o *Orchestrator) Health() HealthStatus {
	return o.health.Check(o.now())
}

// PositionStatus is an open position valued at the latest mark.
type PositionStatus struct {
	domain.Position
	Mark       float64 `json:"mark_price"`
	PnLPercent float64 `json:"pnl_percent"`
	PnLDollars float64 `json:"pnl_dollars"`
}

// Positions returns the open positions valued at the last seen marks.
func (o *Orchestrator) Positions() []PositionStatus {
	all := o.exec.Ledger().All()
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PositionStatus, 0, len(all))
	for _, p := range all {
		mark := o.marks[p.Symbol]
		out = append(out, PositionStatus{
			Position:   p,
			Mark:       mark,
			PnLPercent: p.PnLPercent(mark),
			PnLDollars: p.PnLDollars(mark),
		})
	}
	return out
}

// ResetHalt clears a terminal circuit-breaker halt.
func (o *Orchestrator) ResetHalt(ctx context.Context) domain.RiskState {
	now := o.now()
	o.breaker.ResetHalt(now)
	status := o.breaker.Evaluate(now)
	o.mu.Lock()
	o.breakerStat = status
	o.mu.Unlock()
	o.saveRisk(ctx)
	o.alert(ctx, EventBreaker, "Circuit breaker reset", "terminal halt cleared by operator")
	return o.breaker.State()
}

func (o *Orchestrator) setMark(ctx context.Context, symbol string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	o.mu.Lock()
	o.marks[symbol] = price
	o.mu.Unlock()
	if o.prices != nil {
		if err := o.prices.SetPrice(ctx, symbol, price, at); err != nil {
			o.logger.Debug("price cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (o *Orchestrator) alert(ctx context.Context, event, title, message string) {
	if o.alerts == nil {
		return
	}
	if err := o.alerts.Notify(ctx, event, title, message); err != nil {
		o.logger.Warn("alert failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) saveRisk(ctx context.Context) {
	if o.riskStore == nil {
		return
	}
	if err := o.riskStore.Save(ctx, o.breaker.State()); err != nil {
		o.logger.Warn("risk state save failed", slog.String("error", err.Error()))
	}
}
