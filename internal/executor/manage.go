package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TieredExitResult is the outcome of a graduated exit.
type TieredExitResult struct {
	Action            domain.ExitAction `json:"action"`
	Quantity          float64           `json:"quantity"`
	ExitPrice         float64           `json:"exit_price"`
	PnLPercent        float64           `json:"pnl_percent"`
	PnLDollars        float64           `json:"pnl_dollars"`
	RemainingQuantity float64           `json:"remaining_quantity"`
	NewStop           float64           `json:"new_stop,omitempty"`
	Closed            *CloseResult      `json:"closed,omitempty"`
}

// ExecuteTieredExit applies an ExitSignal to one position. Partial exits
// close the signalled fraction at market, move the stop (breakeven for 60%,
// a close trail for 40%) and re-place the remaining take-profit orders sized
// to what is left. FULL closes the symbol.
func (e *Executor) ExecuteTieredExit(ctx context.Context, pos domain.Position, sig domain.ExitSignal) (TieredExitResult, error) {
	res := TieredExitResult{Action: sig.Action}
	log := e.logger.With(
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
		slog.String("exit_action", string(sig.Action)),
	)

	switch sig.Action {
	case domain.ExitNone:
		res.RemainingQuantity = pos.RemainingQuantity
		return res, nil
	case domain.ExitFull:
		cr, err := e.ClosePosition(ctx, pos.Symbol, exitReason(sig))
		if err != nil {
			return res, err
		}
		res.Closed = &cr
		res.Quantity = cr.Quantity
		res.ExitPrice = cr.ExitPrice
		res.PnLPercent = cr.PnLPercent
		res.PnLDollars = cr.PnLDollars
		return res, nil
	case domain.ExitPartial40, domain.ExitPartial60:
	default:
		return res, &domain.ValidationError{Field: "exit_action", Reason: fmt.Sprintf("unknown action %q", sig.Action)}
	}

	rules, err := e.tradingRules(ctx, pos.Symbol)
	if err != nil {
		return res, err
	}
	mark, err := e.markPrice(ctx, pos.Symbol)
	if err != nil {
		return res, err
	}

	qty := floorToStep(pos.RemainingQuantity*sig.Action.Fraction(), rules.QuantityStep)
	left := roundToStep(pos.RemainingQuantity-qty, rules.QuantityStep)
	if !tradable(rules, qty, mark) || !tradable(rules, left, mark) {
		log.Info("partial exit below minimum tradable unit, closing position",
			slog.Float64("quantity", qty),
			slog.Float64("left", left),
		)
		cp, err := e.ClosePositionByID(ctx, pos.Symbol, pos.ID, exitReason(sig))
		if err != nil {
			return res, err
		}
		res.Quantity = cp.Quantity
		res.ExitPrice = cp.ExitPrice
		res.PnLPercent = cp.PnLPercent
		res.PnLDollars = cp.PnLDollars
		return res, nil
	}

	ack, err := e.exch.PlaceMarketOrder(ctx, pos.Symbol, pos.Side.Opposite(), qty, true)
	if err != nil {
		log.Error("partial exit order failed", slog.String("error", err.Error()))
		return res, fmt.Errorf("executor: partial exit %s: %w", pos.Symbol, err)
	}
	exit, _ := e.resolveFillPrice(ctx, pos.Symbol, ack, mark)

	err = e.ledger.UpdateRemaining(pos.Symbol, pos.ID, left, domain.PartialExit{
		Timestamp:      e.now(),
		FractionClosed: sig.Action.Fraction(),
		Quantity:       qty,
		Price:          exit,
		Reason:         exitReason(sig),
	})
	if err != nil {
		return res, fmt.Errorf("executor: partial exit %s: %w", pos.Symbol, err)
	}

	res.Quantity = qty
	res.ExitPrice = exit
	res.RemainingQuantity = left
	res.PnLPercent = pos.PnLPercent(exit)
	res.PnLDollars = (exit - pos.EntryPrice) * qty * pos.Side.Sign()

	var target float64
	if sig.Action == domain.ExitPartial60 {
		target = roundToStep(pos.EntryPrice*(1+pos.Side.Sign()*e.cfg.BreakevenBufferPct/100), rules.PriceTick)
	} else {
		target = stopFor(pos.Side, mark, e.cfg.Partial40TrailPct, rules.PriceTick)
	}
	stop := pos.StopPrice
	if onSafeSide(pos.Side, target, mark) && pos.IsMoreFavorableStop(target, pos.StopPrice) {
		stop = target
	}
	if stop > 0 {
		if id, err := e.replaceStop(ctx, pos, stop, left, rules); err != nil {
			log.Error("stop re-placement failed", slog.String("error", err.Error()))
		} else {
			res.NewStop = stop
			if err := e.ledger.TightenStop(pos.Symbol, pos.ID, stop, id); err != nil {
				log.Warn("stop not recorded", slog.String("error", err.Error()))
			}
		}
	}

	e.replaceTakeProfits(ctx, pos, left, rules, log)

	log.Info("partial exit executed",
		slog.Float64("quantity", qty),
		slog.Float64("exit", exit),
		slog.Float64("remaining", left),
		slog.Float64("stop", res.NewStop),
	)
	return res, nil
}

// UpdateDynamicTrailingStop trails the stop behind the best price seen once
// PnL reaches the activation threshold. It reports whether the resting stop
// moved.
func (e *Executor) UpdateDynamicTrailingStop(ctx context.Context, pos domain.Position, sig domain.MarketSignals) (bool, error) {
	mark := sig.Price
	if mark <= 0 {
		m, err := e.markPrice(ctx, pos.Symbol)
		if err != nil {
			return false, err
		}
		mark = m
	}
	if !pos.Trailing.Active && pos.PnLPercent(mark) < e.cfg.TrailActivationPct {
		return false, nil
	}
	rules, err := e.tradingRules(ctx, pos.Symbol)
	if err != nil {
		return false, err
	}

	best := pos.Trailing.HighestFavorablePrice
	if best <= 0 || (pos.Side == domain.SideLong && mark > best) || (pos.Side == domain.SideShort && mark < best) {
		best = mark
	}

	ts := pos.Trailing
	ts.HighestFavorablePrice = best
	ts.TrailType = e.trailType(pos, sig, best)
	if !ts.Active {
		now := e.now()
		ts.Active = true
		ts.StartedAt = &now
	}

	current := pos.StopPrice
	if ts.CurrentStopPrice > 0 {
		current = ts.CurrentStopPrice
	}
	stop := stopFor(pos.Side, best, e.trailPct(ts.TrailType), rules.PriceTick)
	if !onSafeSide(pos.Side, stop, mark) || !pos.IsMoreFavorableStop(stop, current) || stop == current {
		if err := e.ledger.SetTrailing(pos.Symbol, pos.ID, ts); err != nil {
			return false, fmt.Errorf("executor: trailing %s: %w", pos.Symbol, err)
		}
		return false, nil
	}

	id, err := e.replaceStop(ctx, pos, stop, pos.RemainingQuantity, rules)
	if err != nil {
		return false, err
	}
	ts.CurrentStopPrice = stop
	if err := e.ledger.SetTrailing(pos.Symbol, pos.ID, ts); err != nil {
		return false, fmt.Errorf("executor: trailing %s: %w", pos.Symbol, err)
	}
	if err := e.ledger.SetStopOrder(pos.Symbol, pos.ID, id); err != nil {
		return true, fmt.Errorf("executor: trailing %s: %w", pos.Symbol, err)
	}

	e.logger.Info("trailing stop moved",
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
		slog.String("trail_type", string(ts.TrailType)),
		slog.Float64("from", current),
		slog.Float64("to", stop),
		slog.Float64("best", best),
	)
	return true, nil
}

// CheckTPTierHitsAndConvert marks every tier whose target the mark has
// crossed. Once the mark passes the conversion tier's target, later resting
// take-profit orders are cancelled and the remainder is handed to aggressive trailing. It
// reports whether the conversion happened on this call.
func (e *Executor) CheckTPTierHitsAndConvert(ctx context.Context, pos domain.Position, mark float64) (bool, error) {
	move := pos.PriceMovePercent(mark)
	remaining := pos.RemainingQuantity
	convertNow := pos.Trailing.TrailType != domain.TrailAggressive && e.conversionReached(pos, move)

	for _, t := range pos.TPTiers {
		if t.Hit || t.Skipped || move < t.TargetPercent {
			continue
		}
		if err := e.ledger.MarkTPTierHit(pos.Symbol, pos.ID, t.Index); err != nil {
			return false, fmt.Errorf("executor: tier %d %s: %w", t.Index, pos.Symbol, err)
		}
		if t.OrderID != "" && t.Quantity > 0 {
			filled := math.Min(t.Quantity, remaining)
			next := subQty(remaining, filled)
			err := e.ledger.UpdateRemaining(pos.Symbol, pos.ID, next, domain.PartialExit{
				Timestamp:      e.now(),
				FractionClosed: filled / remaining,
				Quantity:       filled,
				Price:          pos.TierTargetPrice(t),
				Reason:         fmt.Sprintf("take-profit tier %d", t.Index),
			})
			if err != nil {
				return false, fmt.Errorf("executor: tier %d %s: %w", t.Index, pos.Symbol, err)
			}
			remaining = next
			if remaining <= 0 {
				return false, nil
			}
		}
		e.logger.Info("take-profit tier hit",
			slog.String("symbol", pos.Symbol),
			slog.String("position_id", pos.ID),
			slog.Int("tier", t.Index),
			slog.Float64("price_move", move),
		)
	}
	if !convertNow {
		return false, nil
	}

	for _, t := range pos.TPTiers {
		if t.Index <= e.cfg.ConvertAfterTier || t.Hit || t.Skipped {
			continue
		}
		if t.OrderID != "" {
			if err := e.exch.CancelOrder(ctx, pos.Symbol, t.OrderID); err != nil {
				e.logger.Warn("cancel take-profit failed",
					slog.String("symbol", pos.Symbol),
					slog.Int("tier", t.Index),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := e.ledger.SetTPOrder(pos.Symbol, pos.ID, t.Index, "", 0); err != nil {
			return false, fmt.Errorf("executor: convert %s: %w", pos.Symbol, err)
		}
	}

	ts := pos.Trailing
	ts.TrailType = domain.TrailAggressive
	if !ts.Active {
		now := e.now()
		ts.Active = true
		ts.StartedAt = &now
	}
	if ts.HighestFavorablePrice <= 0 || pos.IsMoreFavorableStop(mark, ts.HighestFavorablePrice) {
		ts.HighestFavorablePrice = mark
	}
	if err := e.ledger.SetTrailing(pos.Symbol, pos.ID, ts); err != nil {
		return false, fmt.Errorf("executor: convert %s: %w", pos.Symbol, err)
	}
	e.logger.Info("remaining take-profit converted to aggressive trailing",
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
	)
	return true, nil
}

// LockQuickProfit moves the stop just past entry once a low-confidence
// position reaches the quick-lock PnL. It runs at most once per position.
func (e *Executor) LockQuickProfit(ctx context.Context, pos domain.Position, mark float64) (bool, error) {
	if pos.ProfitLocked || pos.Confidence >= e.cfg.QuickLockMaxConf || pos.PnLPercent(mark) < e.cfg.QuickLockPnLPct {
		return false, nil
	}
	rules, err := e.tradingRules(ctx, pos.Symbol)
	if err != nil {
		return false, err
	}
	stop := roundToStep(pos.EntryPrice*(1+pos.Side.Sign()*e.cfg.BreakevenBufferPct/100), rules.PriceTick)
	if !onSafeSide(pos.Side, stop, mark) || !pos.IsMoreFavorableStop(stop, pos.StopPrice) {
		return false, e.ledger.SetProfitLocked(pos.Symbol, pos.ID)
	}

	id, err := e.replaceStop(ctx, pos, stop, pos.RemainingQuantity, rules)
	if err != nil {
		return false, err
	}
	if err := e.ledger.TightenStop(pos.Symbol, pos.ID, stop, id); err != nil {
		return false, fmt.Errorf("executor: quick lock %s: %w", pos.Symbol, err)
	}
	if err := e.ledger.SetProfitLocked(pos.Symbol, pos.ID); err != nil {
		return true, fmt.Errorf("executor: quick lock %s: %w", pos.Symbol, err)
	}
	e.logger.Info("quick profit locked",
		slog.String("symbol", pos.Symbol),
		slog.String("position_id", pos.ID),
		slog.Float64("stop", stop),
	)
	return true, nil
}

// CloseStalePositions closes positions whose PnL has stayed within
// ±bandPct for at least staleAfter. marks may be nil; missing symbols are
// priced from the exchange.
func (e *Executor) CloseStalePositions(ctx context.Context, marks map[string]float64, staleAfter time.Duration, bandPct float64) ([]ClosedPosition, error) {
	now := e.now()
	var (
		closed []ClosedPosition
		errs   []error
	)
	for _, p := range e.ledger.All() {
		mark, ok := marks[p.Symbol]
		if !ok || mark <= 0 {
			m, err := e.markPrice(ctx, p.Symbol)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			mark = m
		}

		pnl := p.PnLPercent(mark)
		if math.Abs(pnl) > bandPct {
			if p.FlatSince != nil {
				_ = e.ledger.SetFlatSince(p.Symbol, p.ID, nil)
			}
			continue
		}
		if p.FlatSince == nil {
			_ = e.ledger.SetFlatSince(p.Symbol, p.ID, &now)
			continue
		}
		if now.Sub(*p.FlatSince) < staleAfter {
			continue
		}

		reason := fmt.Sprintf("stale: pnl %.2f%% flat for %s", pnl, now.Sub(*p.FlatSince).Round(time.Minute))
		cp, err := e.ClosePositionByID(ctx, p.Symbol, p.ID, reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		closed = append(closed, cp)
	}
	return closed, errors.Join(errs...)
}

// replaceStop cancels the position's resting stop and places a new one. If
// the new stop is refused the old one is restored so the position is never
// left unprotected by this call.
func (e *Executor) replaceStop(ctx context.Context, pos domain.Position, price, qty float64, rules domain.TradingRules) (string, error) {
	if pos.StopOrderID != "" {
		if err := e.exch.CancelOrder(ctx, pos.Symbol, pos.StopOrderID); err != nil {
			return "", fmt.Errorf("executor: cancel stop %s: %w", pos.Symbol, err)
		}
	}
	qty = roundToStep(qty, rules.QuantityStep)
	ack, err := e.exch.PlaceStopOrder(ctx, pos.Symbol, pos.Side.Opposite(), price, qty)
	if err == nil {
		return ack.OrderID, nil
	}
	if pos.StopPrice > 0 {
		if back, rerr := e.exch.PlaceStopOrder(ctx, pos.Symbol, pos.Side.Opposite(), pos.StopPrice, qty); rerr == nil {
			_ = e.ledger.SetStopOrder(pos.Symbol, pos.ID, back.OrderID)
		} else {
			e.logger.Error("position left without stop",
				slog.String("symbol", pos.Symbol),
				slog.String("position_id", pos.ID),
				slog.String("error", rerr.Error()),
			)
			_ = e.ledger.SetStopOrder(pos.Symbol, pos.ID, "")
		}
	}
	return "", fmt.Errorf("executor: place stop %s at %.8f: %w", pos.Symbol, price, err)
}

// replaceTakeProfits cancels the open tiers of pos and re-places them split
// over left by their configured fractions.
func (e *Executor) replaceTakeProfits(ctx context.Context, pos domain.Position, left float64, rules domain.TradingRules, log *slog.Logger) {
	var open []domain.TPTier
	var total float64
	for _, t := range pos.TPTiers {
		if t.Hit || t.Skipped {
			continue
		}
		if t.OrderID != "" {
			if err := e.exch.CancelOrder(ctx, pos.Symbol, t.OrderID); err != nil {
				log.Warn("cancel take-profit failed", slog.Int("tier", t.Index), slog.String("error", err.Error()))
			}
		}
		open = append(open, t)
		total += t.QuantityFraction
	}
	if len(open) == 0 || total <= 0 {
		return
	}

	rest := left
	for i, t := range open {
		price := roundToStep(pos.TierTargetPrice(t), rules.PriceTick)
		q := floorToStep(left*t.QuantityFraction/total, rules.QuantityStep)
		if i == len(open)-1 {
			q = roundToStep(rest, rules.QuantityStep)
		}
		if !tradable(rules, q, price) || exceeds(q, rest) {
			_ = e.ledger.SetTPOrder(pos.Symbol, pos.ID, t.Index, "", 0)
			continue
		}
		ack, err := e.exch.PlaceTakeProfitOrder(ctx, pos.Symbol, pos.Side.Opposite(), price, q)
		if err != nil {
			log.Warn("take-profit re-placement failed", slog.Int("tier", t.Index), slog.String("error", err.Error()))
			_ = e.ledger.SetTPOrder(pos.Symbol, pos.ID, t.Index, "", 0)
			continue
		}
		rest = roundToStep(subQty(rest, q), rules.QuantityStep)
		_ = e.ledger.SetTPOrder(pos.Symbol, pos.ID, t.Index, ack.OrderID, q)
	}
}

// conversionReached reports whether move has crossed the conversion tier's
// target. A tier without a resting order still counts.
func (e *Executor) conversionReached(pos domain.Position, move float64) bool {
	for _, t := range pos.TPTiers {
		if t.Index == e.cfg.ConvertAfterTier {
			return t.Hit || move >= t.TargetPercent
		}
	}
	return false
}

func (e *Executor) trailType(pos domain.Position, sig domain.MarketSignals, best float64) domain.TrailType {
	if pos.Trailing.TrailType == domain.TrailAggressive || e.conversionReached(pos, pos.PriceMovePercent(best)) {
		return domain.TrailAggressive
	}
	if sig.ATRPercent >= e.cfg.HighVolatilityATR {
		return domain.TrailWide
	}
	return domain.TrailTight
}

func (e *Executor) trailPct(t domain.TrailType) float64 {
	switch t {
	case domain.TrailAggressive:
		return e.cfg.TrailAggressivePct
	case domain.TrailWide:
		return e.cfg.TrailWidePct
	default:
		return e.cfg.TrailTightPct
	}
}

func exitReason(sig domain.ExitSignal) string {
	r := "exit policy: " + string(sig.Action)
	if len(sig.Reasons) > 0 {
		r += ": " + strings.Join(sig.Reasons, "; ")
	}
	return r
}
