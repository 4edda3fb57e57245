package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/futuresbot/internal/domain"
	"github.com/alanyoungcy/futuresbot/internal/executor"
	"github.com/alanyoungcy/futuresbot/internal/oracle"
	"github.com/alanyoungcy/futuresbot/internal/risk"
	"github.com/alanyoungcy/futuresbot/internal/tradelog"
)

// Decision outcomes written to the decision log.
const (
	OutcomeHold        = "hold"
	OutcomeClosed      = "closed"
	OutcomeNoPosition  = "close ignored: no open position"
	OutcomeCloseFailed = "close failed"
	OutcomeRejected    = "rejected"
	OutcomeOpened      = "opened"
	OutcomeOpenFailed  = "entry failed"
	OutcomeDuplicate   = "duplicate suppressed"
)

// tradeSymbol asks the oracle about one symbol and acts on the decision. pf
// is refreshed after a successful entry so later symbols size against it.
func (o *Orchestrator) tradeSymbol(ctx context.Context, sig domain.MarketSignals, day int, pf *domain.Portfolio, status domain.BreakerStatus) error {
	symbol := sig.Symbol
	l := o.exec.Ledger()
	symPositions := l.Get(symbol)
	all := l.All()

	prompt := oracle.BuildContext(oracle.ContextInput{
		Signals:          sig,
		Portfolio:        *pf,
		DrawdownPercent:  status.Drawdown * 100,
		Positions:        o.positionViews(all),
		MaxOpenPositions: o.cfg.MaxOpenPositions,
		Day:              day,
		TotalDays:        o.cfg.DurationDays,
		BreakerLevel:     status.Level,
	})

	start := o.now()
	d, err := o.oracle.Decide(ctx, symbol, prompt, day)
	o.metrics.RecordDecision(d, o.now().Sub(start))
	if err != nil {
		o.logger.Warn("oracle decision degraded",
			slog.String("symbol", symbol),
			slog.String("action", string(d.Action)),
			slog.String("error", err.Error()),
		)
		o.journal.RecordError(ctx, err, map[string]any{"symbol": symbol, "stage": "oracle"})
	}
	if d.Symbol == "" {
		d.Symbol = symbol
	}
	o.logger.Info("decision",
		slog.String("symbol", symbol),
		slog.String("action", string(d.Action)),
		slog.Float64("confidence", d.Confidence),
		slog.String("source", string(d.Source)),
		slog.String("regime", sig.Regime.String()),
	)

	switch d.Action {
	case domain.ActionHold:
		o.recordDecision(ctx, d, sig, OutcomeHold)
		return nil
	case domain.ActionClose:
		return o.closeOnDecision(ctx, d, sig, len(symPositions) > 0)
	}

	side, ok := d.Action.Side()
	if !ok {
		o.recordDecision(ctx, d, sig, OutcomeRejected+": unknown action")
		return nil
	}

	marks := o.lastMarks()
	marks[symbol] = sig.Price
	v := o.gate.SizeAndValidate(risk.Request{
		Decision:        d,
		Symbol:          symbol,
		Regime:          sig.Regime,
		Portfolio:       *pf,
		SymbolPositions: symPositions,
		AllPositions:    all,
		Marks:           marks,
		Breaker:         status,
	})
	if !v.Approved {
		check := risk.CheckBreaker
		if rr, ok := domain.AsRiskRejection(v.Err); ok {
			check = rr.Check
		}
		o.metrics.RecordRejection(check)
		o.logger.Info("entry rejected",
			slog.String("symbol", symbol),
			slog.String("check", check),
			slog.String("reason", v.Reason),
		)
		o.recordDecision(ctx, d, sig, OutcomeRejected+": "+v.Reason)
		return nil
	}

	req := executor.OpenRequest{
		Symbol:        symbol,
		Side:          side,
		Notional:      v.SizeDollars,
		Leverage:      v.Leverage,
		StopLossPct:   d.StopLossPercent,
		TakeProfitPct: d.TakeProfitPercent,
		Confidence:    d.Confidence,
		Regime:        sig.Regime,
		Strategy:      d.Strategy,
	}
	if len(symPositions) > 0 {
		req.Pyramid = &executor.PyramidInfo{FirstPositionID: symPositions[0].ID}
	}
	res, err := o.exec.OpenPosition(ctx, req)
	o.metrics.RecordEntry(side, err)
	if err != nil && !res.Legs.Entry {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			o.recordDecision(ctx, d, sig, OutcomeDuplicate)
			return nil
		}
		o.recordDecision(ctx, d, sig, OutcomeOpenFailed+": "+err.Error())
		return fmt.Errorf("open %s %s: %w", side, symbol, err)
	}
	if err != nil {
		o.logger.Warn("entry filled with missing protective legs",
			slog.String("symbol", symbol),
			slog.Bool("stop_loss", res.Legs.StopLoss),
			slog.String("error", err.Error()),
		)
		o.journal.RecordError(ctx, err, map[string]any{"symbol": symbol, "stage": "entry_legs"})
	}

	o.breaker.RecordTrade()
	if err := o.journal.RecordTrade(ctx, tradelog.OpenRecord(res.Position, d.EntryReason)); err != nil {
		o.logger.Warn("trade log write failed", slog.String("error", err.Error()))
	}
	o.recordDecision(ctx, d, sig, OutcomeOpened)
	o.alert(ctx, EventTrade, fmt.Sprintf("Opened %s %s", side, symbol),
		fmt.Sprintf("qty %.6f @ %.4f, %dx, $%.2f notional, confidence %.0f: %s",
			res.Quantity, res.FilledPrice, v.Leverage, v.SizeDollars, d.Confidence, d.EntryReason))

	if fresh, err := o.readPortfolio(ctx, o.now()); err == nil {
		*pf = fresh
	} else {
		o.logger.Warn("portfolio refresh failed", slog.String("error", err.Error()))
	}
	return nil
}

func (o *Orchestrator) closeOnDecision(ctx context.Context, d domain.Decision, sig domain.MarketSignals, open bool) error {
	if !open {
		o.recordDecision(ctx, d, sig, OutcomeNoPosition)
		return nil
	}
	res, err := o.exec.ClosePosition(ctx, d.Symbol, "oracle: "+d.EntryReason)
	for _, cp := range res.Closed {
		o.recordClosed(ctx, cp, "oracle")
	}
	if err != nil {
		o.recordDecision(ctx, d, sig, OutcomeCloseFailed+": "+err.Error())
		return fmt.Errorf("close %s: %w", d.Symbol, err)
	}
	o.recordDecision(ctx, d, sig, OutcomeClosed)
	return nil
}

func (o *Orchestrator) recordDecision(ctx context.Context, d domain.Decision, sig domain.MarketSignals, outcome string) {
	if err := o.journal.RecordDecision(ctx, d, sig, outcome); err != nil {
		o.logger.Warn("decision log write failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) positionViews(all []domain.Position) []oracle.PositionView {
	marks := o.lastMarks()
	out := make([]oracle.PositionView, 0, len(all))
	for _, p := range all {
		out = append(out, oracle.PositionView{
			Symbol:     p.Symbol,
			Side:       p.Side,
			EntryPrice: p.EntryPrice,
			PnLPercent: p.PnLPercent(marks[p.Symbol]),
			Leverage:   p.Leverage,
			IsPyramid:  p.IsPyramid,
		})
	}
	return out
}

func (o *Orchestrator) lastMarks() map[string]float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]float64, len(o.marks))
	for k, v := range o.marks {
		out[k] = v
	}
	return out
}
