package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/futuresbot/internal/cache/redis"
	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/executor"
	"github.com/alanyoungcy/futuresbot/internal/exitpolicy"
	"github.com/alanyoungcy/futuresbot/internal/indicator"
	"github.com/alanyoungcy/futuresbot/internal/ledger"
	"github.com/alanyoungcy/futuresbot/internal/oracle"
	"github.com/alanyoungcy/futuresbot/internal/orchestrator"
	"github.com/alanyoungcy/futuresbot/internal/pipeline"
	"github.com/alanyoungcy/futuresbot/internal/platform/binance"
	"github.com/alanyoungcy/futuresbot/internal/platform/paper"
	"github.com/alanyoungcy/futuresbot/internal/risk"
	"github.com/alanyoungcy/futuresbot/internal/server"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
	"github.com/alanyoungcy/futuresbot/internal/server/ws"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

const (
	instanceLockKey = "instance"
	paperSweepEvery = 5 * time.Second
)

// LiveMode trades on Binance USDⓈ-M futures.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	client := binance.New(binanceConfig(a.cfg), a.logger)
	return a.runAgent(ctx, deps, client, client, nil)
}

// PaperMode simulates fills locally against live Binance prices. Market
// data still comes from the exchange; no order ever reaches it.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	md := binance.New(binanceConfig(a.cfg), a.logger)
	exch := paper.New(md, paperConfig(a.cfg), a.logger)
	return a.runAgent(ctx, deps, exch, md, func(ctx context.Context) error {
		return exch.Run(ctx, paperSweepEvery)
	})
}

// ServerMode serves the HTTP API over persisted state without trading.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if deps.RiskStore == nil {
		return errors.New("app: server mode requires postgres")
	}
	journal, err := tradelog.New(journalConfig(a.cfg), tradelog.Sinks{}, a.logger)
	if err != nil {
		return fmt.Errorf("app: open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	agent := newReadOnlyAgent(deps.RiskStore, a.cfg.Trading.DurationDays, a.logger)
	g, gctx := errgroup.WithContext(ctx)
	a.startServer(gctx, g, deps, agent, journal)
	return g.Wait()
}

// runAgent builds the trading stack on exch and runs it with the optional
// background services until the loop exits. extra runs alongside the loop
// when set.
func (a *App) runAgent(
	ctx context.Context,
	deps *Dependencies,
	exch domain.Exchange,
	candles domain.CandleSource,
	extra func(context.Context) error,
) error {
	cfg := a.cfg

	// A second agent on the same account would double every order.
	var lease *redis.Lease
	if deps.Locks != nil {
		var err error
		lease, err = deps.Locks.AcquireLease(ctx, instanceLockKey, cfg.Trading.InstanceLockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: instance lock: %w", err)
		}
		defer lease.Release()
	}

	initial, err := loadRiskState(ctx, deps.RiskStore)
	if err != nil {
		return err
	}

	journal, err := tradelog.New(journalConfig(cfg), tradelog.Sinks{
		Trades:    deps.TradeStore,
		Decisions: deps.DecisionStore,
		Snapshots: deps.SnapshotStore,
		Audit:     deps.AuditStore,
		Bus:       deps.SignalBus,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("app: open journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	led := ledger.New(cfg.Risk.MaxPositionsPerSymbol)
	exec := executor.New(exch, led, executorConfig(cfg), a.logger)

	var orch *orchestrator.Orchestrator
	decider := &oracle.WithFallback{
		Oracle: oracle.New(oracleConfig(cfg), deps.RateLimiter, a.logger),
		Fallback: oracle.Fallback{
			Mode:    cfg.Oracle.FallbackMode,
			LossPct: cfg.Oracle.FallbackLossPct,
		},
		PnL: func(symbol string) []float64 {
			var out []float64
			for _, p := range orch.Positions() {
				if p.Symbol == symbol {
					out = append(out, p.PnLPercent)
				}
			}
			return out
		},
		Logger: a.logger,
	}

	orch, err = orchestrator.New(orchestratorConfig(cfg), orchestrator.Deps{
		Exchange:  exch,
		Feed:      indicator.NewFeed(candles, exch.GetTickerPrice, feedConfig(cfg), a.logger),
		Oracle:    decider,
		Gate:      risk.NewGate(gateConfig(cfg)),
		Breaker:   risk.NewCircuitBreaker(breakerConfig(cfg), initial, a.logger),
		Executor:  exec,
		Exits:     exitpolicy.New(exitConfig(cfg)),
		Journal:   journal,
		Metrics:   deps.Metrics,
		Alerts:    deps.Notifier,
		RiskStore: deps.RiskStore,
		Prices:    deps.PriceCache,
		Archiver:  deps.Archiver,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: build orchestrator: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// The loop returns on its own when the competition window closes;
		// the siblings must stop with it.
		defer cancel()
		return orch.Run(gctx)
	})
	if extra != nil {
		g.Go(func() error { return extra(gctx) })
	}
	if lease != nil {
		g.Go(func() error {
			if err := lease.Keep(gctx, a.logger); err != nil {
				return fmt.Errorf("app: instance lock: %w", err)
			}
			return nil
		})
	}
	if deps.Archiver != nil && cfg.Log.ArchiveCron != "" {
		la, err := pipeline.NewLogArchiver(deps.Archiver, journal.Dir(), cfg.Log.ArchiveCron, a.logger)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error { return la.Run(gctx) })
	}
	if cfg.Server.Enabled {
		a.startServer(gctx, g, deps, orch, journal)
	}

	return g.Wait()
}

// startServer adds the HTTP API and its WebSocket hub to g.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, agent handler.Agent, journal *tradelog.Journal) {
	cfg := a.cfg
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:   cfg.Mode,
		Status: func() any { return agent.Status() },
	})

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(agent),
		Status:      handler.NewStatusHandler(agent, cfg.Mode, config.RedactedConfig(cfg)),
		Positions:   handler.NewPositionHandler(agent),
		Trades:      handler.NewTradeHandler(journal, deps.TradeStore, a.logger),
		Decisions:   handler.NewDecisionHandler(journal, deps.DecisionStore, a.logger),
		Performance: handler.NewPerformanceHandler(journal, deps.SnapshotStore, a.logger),
		Risk:        handler.NewRiskHandler(agent, deps.AuditStore, a.logger),
		Metrics:     deps.Metrics.Handler(),
	}
	if deps.Archives != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.Archives, cfg.S3.Prefix, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
}

// loadRiskState restores the persisted breaker state. The zero state is a
// fresh start.
func loadRiskState(ctx context.Context, store domain.RiskStateStore) (domain.RiskState, error) {
	if store == nil {
		return domain.RiskState{}, nil
	}
	st, err := store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.RiskState{}, nil
	case err != nil:
		return domain.RiskState{}, fmt.Errorf("app: load risk state: %w", err)
	}
	return st, nil
}
