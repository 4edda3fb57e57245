package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/executor"
	"github.com/alanyoungcy/futuresbot/internal/exitpolicy"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// RunCycle executes one full pass. Only a failed portfolio read fails the
// cycle; per-symbol failures are logged and skipped.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	now := o.now()
	o.exec.PruneEntryGuard()

	pf, err := o.readPortfolio(ctx, now)
	if err != nil {
		return fmt.Errorf("orchestrator: portfolio: %w", err)
	}
	o.breaker.Update(pf.TotalValue, now)
	status := o.breaker.Evaluate(now)
	o.onBreaker(ctx, status)
	o.snapshot(ctx, pf, status, now)

	o.reconcile(ctx, now)

	signals := o.collectSignals(ctx, now)
	marks := make(map[string]float64, len(signals))
	for sym, sig := range signals {
		marks[sym] = sig.Price
	}

	if !status.CanTrade && status.Level >= domain.BreakerL2 {
		o.closeLosers(ctx, marks)
	}
	for _, sym := range o.exec.Ledger().Symbols() {
		if sig, ok := signals[sym]; ok {
			o.manageSymbol(ctx, sym, sig)
		}
	}
	o.closeStale(ctx, marks)

	if !status.CanTrade {
		o.logger.Info("new entries blocked",
			slog.String("level", status.Level.String()),
			slog.String("reason", status.Reason),
		)
		return nil
	}
	if ok, why := o.cfg.TimeFilter.Allow(now); !ok {
		o.logger.Info("new entries skipped", slog.String("reason", why))
		return nil
	}

	day := o.Day(now)
	for _, asset := range o.cfg.Assets {
		if ctx.Err() != nil {
			return nil
		}
		sig, ok := signals[asset]
		if !ok {
			s, err := o.feed.Signals(ctx, asset)
			if err != nil {
				o.symbolError(ctx, asset, "signals", err)
				continue
			}
			sig = s
			o.setMark(ctx, asset, sig.Price, now)
		}
		if err := o.tradeSymbol(ctx, sig, day, &pf, status); err != nil {
			o.symbolError(ctx, asset, "trade", err)
		}
	}
	return nil
}

// readPortfolio reads the account and publishes it to status readers.
func (o *Orchestrator) readPortfolio(ctx context.Context, now time.Time) (domain.Portfolio, error) {
	bal, err := o.exch.GetAccountBalance(ctx)
	if err != nil {
		o.metrics.RecordExchangeError(err)
		return domain.Portfolio{}, err
	}
	pf := domain.Portfolio{
		TotalValue:       bal.TotalValue(),
		AvailableBalance: bal.AvailableBalance,
		UnrealizedPnL:    bal.UnrealizedProfit,
		At:               now,
	}
	o.mu.Lock()
	o.portfolio = pf
	o.mu.Unlock()
	return pf, nil
}

// onBreaker publishes the breaker status and alerts on level changes.
func (o *Orchestrator) onBreaker(ctx context.Context, status domain.BreakerStatus) {
	o.mu.Lock()
	prev := o.breakerStat
	o.breakerStat = status
	first := o.cycle == 0 && o.lastCycleAt.IsZero()
	o.mu.Unlock()

	o.saveRisk(ctx)
	if status.Level == prev.Level && status.CanTrade == prev.CanTrade {
		return
	}
	if first && status.Level == domain.BreakerNone {
		return
	}
	o.logger.Warn("circuit breaker changed",
		slog.String("from", prev.Level.String()),
		slog.String("to", status.Level.String()),
		slog.Bool("can_trade", status.CanTrade),
		slog.Float64("drawdown", status.Drawdown),
	)
	msg := fmt.Sprintf("%s -> %s, drawdown %.2f%%: %s",
		prev.Level, status.Level, status.Drawdown*100, status.Reason)
	o.alert(ctx, EventBreaker, "Circuit breaker "+status.Level.String(), msg)
}

func (o *Orchestrator) snapshot(ctx context.Context, pf domain.Portfolio, status domain.BreakerStatus, now time.Time) {
	rs := o.breaker.State()
	o.mu.RLock()
	cycle := o.cycle + 1
	o.mu.RUnlock()
	snap := domain.PerformanceSnapshot{
		Timestamp:     now,
		Cycle:         cycle,
		TotalValue:    pf.TotalValue,
		Available:     pf.AvailableBalance,
		UnrealizedPnL: pf.UnrealizedPnL,
		PeakValue:     rs.PeakValue,
		Drawdown:      status.Drawdown,
		BreakerLevel:  status.Level,
		OpenPositions: o.exec.Ledger().Count(),
	}
	o.metrics.RecordPortfolio(snap)
	if err := o.journal.RecordSnapshot(ctx, snap); err != nil {
		o.logger.Warn("snapshot write failed", slog.String("error", err.Error()))
	}
}

// reconcile drops ledger positions the venue no longer holds. A flat venue
// position means a resting stop or the last take-profit filled.
func (o *Orchestrator) reconcile(ctx context.Context, now time.Time) {
	l := o.exec.Ledger()
	for _, sym := range l.Symbols() {
		info, err := o.exch.GetPositionInfo(ctx, sym)
		if err != nil {
			o.symbolError(ctx, sym, "reconcile", err)
			continue
		}
		if info.Amount != 0 {
			continue
		}
		price, err := o.exch.GetLastTradePrice(ctx, sym)
		if err != nil || price <= 0 {
			price = info.MarkPrice
		}
		for _, p := range l.Get(sym) {
			if err := l.Remove(sym, p.ID); err != nil {
				continue
			}
			o.logger.Info("position closed on venue",
				slog.String("symbol", sym),
				slog.String("position_id", p.ID),
				slog.Float64("exit_price", price),
			)
			rec := tradelog.ExitRecord(p, domain.TradeClose, p.RemainingQuantity, price,
				"closed on venue by resting stop or take-profit", now)
			o.recordExit(ctx, rec, "venue", true)
		}
		if err := o.exch.CancelAllOpenOrders(ctx, sym); err != nil {
			o.symbolError(ctx, sym, "cancel_orders", err)
		}
	}
}

// collectSignals fetches signals for every symbol with open positions. A
// feed failure falls back to a bare mark so position management still runs.
func (o *Orchestrator) collectSignals(ctx context.Context, now time.Time) map[string]domain.MarketSignals {
	out := make(map[string]domain.MarketSignals)
	for _, sym := range o.exec.Ledger().Symbols() {
		sig, err := o.feed.Signals(ctx, sym)
		if err != nil {
			o.symbolError(ctx, sym, "signals", err)
			mark, merr := o.exch.GetMarkPrice(ctx, sym)
			if merr != nil {
				o.symbolError(ctx, sym, "mark_price", merr)
				continue
			}
			sig = domain.MarketSignals{Symbol: sym, Price: mark, RSI: 50, Regime: domain.RegimeUnknown, Timestamp: now}
		}
		if sig.Price <= 0 {
			continue
		}
		out[sym] = sig
		o.setMark(ctx, sym, sig.Price, now)
	}
	return out
}

// closeLosers closes positions losing more than LosingClosePct while the
// breaker has paused trading.
func (o *Orchestrator) closeLosers(ctx context.Context, marks map[string]float64) {
	if o.cfg.LosingClosePct >= 0 {
		return
	}
	for _, p := range o.exec.Ledger().All() {
		mark, ok := marks[p.Symbol]
		if !ok {
			continue
		}
		pnl := p.PnLPercent(mark)
		if pnl >= o.cfg.LosingClosePct {
			continue
		}
		reason := fmt.Sprintf("circuit breaker: closing loser at %.2f%%", pnl)
		cp, err := o.exec.ClosePositionByID(ctx, p.Symbol, p.ID, reason)
		if err != nil {
			o.symbolError(ctx, p.Symbol, "breaker_close", err)
			continue
		}
		o.recordClosed(ctx, cp, "breaker")
	}
}

// manageSymbol runs take-profit conversion, trailing and the profit lock on
// every position of symbol, then applies ExitPolicy to the worst one.
func (o *Orchestrator) manageSymbol(ctx context.Context, symbol string, sig domain.MarketSignals) {
	l := o.exec.Ledger()
	for _, p := range l.Get(symbol) {
		o.managePosition(ctx, p, sig)
	}

	worst, ok := exitpolicy.SelectWorst(l.Get(symbol), sig.Price)
	if !ok {
		return
	}
	exit := o.exits.Evaluate(worst, sig)
	if exit.Action == domain.ExitNone {
		return
	}
	o.logger.Info("exit signal",
		slog.String("symbol", symbol),
		slog.String("position_id", worst.ID),
		slog.String("action", string(exit.Action)),
		slog.Float64("confidence", exit.Confidence),
		slog.String("reasons", strings.Join(exit.Reasons, "; ")),
	)
	res, err := o.exec.ExecuteTieredExit(ctx, worst, exit)
	if err != nil {
		o.symbolError(ctx, symbol, "tiered_exit", err)
		return
	}
	kind := strings.ToLower(string(exit.Action))
	if res.Closed != nil {
		for _, cp := range res.Closed.Closed {
			o.recordClosed(ctx, cp, kind)
		}
		return
	}
	if res.Quantity > 0 {
		rec := tradelog.ExitRecord(worst, domain.TradePartial, res.Quantity, res.ExitPrice,
			"exit policy: "+strings.Join(exit.Reasons, "; "), o.now())
		o.recordExit(ctx, rec, kind, false)
	}
}

// managePosition re-reads the position between steps since each one may
// change it.
func (o *Orchestrator) managePosition(ctx context.Context, p domain.Position, sig domain.MarketSignals) {
	l := o.exec.Ledger()
	before := p

	if _, err := o.exec.CheckTPTierHitsAndConvert(ctx, p, sig.Price); err != nil {
		o.symbolError(ctx, p.Symbol, "take_profit_tiers", err)
	}
	cur, err := l.Find(p.Symbol, p.ID)
	if err != nil {
		o.recordTierFill(ctx, before, 0, sig.Price)
		return
	}
	o.recordTierFill(ctx, before, cur.RemainingQuantity, sig.Price)

	if _, err := o.exec.UpdateDynamicTrailingStop(ctx, cur, sig); err != nil {
		o.symbolError(ctx, p.Symbol, "trailing_stop", err)
	}
	if cur, err = l.Find(p.Symbol, p.ID); err != nil {
		return
	}
	if _, err := o.exec.LockQuickProfit(ctx, cur, sig.Price); err != nil {
		o.symbolError(ctx, p.Symbol, "profit_lock", err)
	}
}

// recordTierFill journals a take-profit reduction observed between reads.
func (o *Orchestrator) recordTierFill(ctx context.Context, before domain.Position, remaining, price float64) {
	filled := before.RemainingQuantity - remaining
	if filled <= 0 {
		return
	}
	event := domain.TradePartial
	if remaining <= 0 {
		event = domain.TradeClose
	}
	rec := tradelog.ExitRecord(before, event, filled, price, "take-profit tier filled", o.now())
	o.recordExit(ctx, rec, "take_profit", event == domain.TradeClose)
}

func (o *Orchestrator) closeStale(ctx context.Context, marks map[string]float64) {
	if o.cfg.StaleAfter <= 0 {
		return
	}
	closed, err := o.exec.CloseStalePositions(ctx, marks, o.cfg.StaleAfter, o.cfg.StaleBandPct)
	for _, cp := range closed {
		o.recordClosed(ctx, cp, "stale")
	}
	if err != nil {
		o.symbolError(ctx, "", "stale_close", err)
	}
}

// recordClosed journals an executor close.
func (o *Orchestrator) recordClosed(ctx context.Context, cp executor.ClosedPosition, kind string) {
	rec := tradelog.ExitRecord(cp.Position, domain.TradeClose, cp.Quantity, cp.ExitPrice, cp.Reason, cp.ClosedAt)
	o.recordExit(ctx, rec, kind, true)
}

func (o *Orchestrator) recordExit(ctx context.Context, rec domain.TradeRecord, kind string, final bool) {
	o.metrics.RecordExit(kind, rec.PnLDollars, final)
	if err := o.journal.RecordTrade(ctx, rec); err != nil {
		o.logger.Warn("trade log write failed", slog.String("error", err.Error()))
	}
	if final {
		o.alert(ctx, EventTrade, fmt.Sprintf("Closed %s %s", rec.Side, rec.Symbol),
			fmt.Sprintf("exit %.4f, PnL %.2f%% ($%.2f): %s", rec.ExitPrice, rec.PnLPercent, rec.PnLDollars, rec.Reason))
	}
}

// symbolError logs a per-symbol failure without aborting the cycle.
func (o *Orchestrator) symbolError(ctx context.Context, symbol, stage string, err error) {
	if ctx.Err() != nil {
		return
	}
	o.logger.Error("cycle step failed",
		slog.String("symbol", symbol),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	o.metrics.RecordExchangeError(err)
	o.journal.RecordError(ctx, err, map[string]any{"symbol": symbol, "stage": stage})
}
