package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// ClosePosition closes every position on symbol with one reduce-only market
// order, cancels all resting orders for the symbol and removes the positions
// from the ledger. With an empty ledger the venue's position is closed so an
// orphan left by a crash does not stay open.
func (e *Executor) ClosePosition(ctx context.Context, symbol, reason string) (CloseResult, error) {
	res := CloseResult{Symbol: symbol}
	log := e.logger.With(slog.String("symbol", symbol), slog.String("reason", reason))

	positions := e.ledger.Get(symbol)
	var (
		side domain.Side
		qty  float64
	)
	if len(positions) > 0 {
		side = positions[0].Side
		for _, p := range positions {
			qty += p.RemainingQuantity
		}
	} else {
		info, err := e.exch.GetPositionInfo(ctx, symbol)
		if err != nil {
			return res, fmt.Errorf("executor: close %s: position info: %w", symbol, err)
		}
		if info.Amount == 0 {
			return res, fmt.Errorf("executor: close %s: %w", symbol, domain.ErrPositionNotFound)
		}
		side = info.Side()
		qty = math.Abs(info.Amount)
		log.Warn("closing venue position missing from ledger", slog.Float64("amount", info.Amount))
	}

	if rules, err := e.tradingRules(ctx, symbol); err == nil {
		qty = roundToStep(qty, rules.QuantityStep)
	}
	quote, _ := e.markPrice(ctx, symbol)

	ack, err := e.exch.PlaceMarketOrder(ctx, symbol, side.Opposite(), qty, true)
	if err != nil {
		log.Error("close order failed", slog.String("error", err.Error()))
		return res, fmt.Errorf("executor: close %s: %w", symbol, err)
	}
	exit, source := e.resolveFillPrice(ctx, symbol, ack, quote)

	if err := e.exch.CancelAllOpenOrders(ctx, symbol); err != nil {
		log.Warn("cancel resting orders failed", slog.String("error", err.Error()))
	}

	res.ExitPrice = exit
	res.Quantity = qty
	closedAt := e.now()
	var notional float64
	for _, p := range positions {
		cp := ClosedPosition{
			Position:   p,
			ExitPrice:  exit,
			Quantity:   p.RemainingQuantity,
			PnLPercent: p.PnLPercent(exit),
			PnLDollars: p.PnLDollars(exit),
			Reason:     reason,
			ClosedAt:   closedAt,
		}
		res.Closed = append(res.Closed, cp)
		res.PnLDollars += cp.PnLDollars
		res.PnLPercent += cp.PnLPercent * p.Notional()
		notional += p.Notional()
	}
	if notional > 0 {
		res.PnLPercent /= notional
	}

	// Pyramids go first so the first position is never promoted needlessly.
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].IsPyramid && !positions[j].IsPyramid })
	for _, p := range positions {
		if err := e.ledger.Remove(symbol, p.ID); err != nil && !errors.Is(err, domain.ErrPositionNotFound) {
			log.Error("ledger remove failed", slog.String("position_id", p.ID), slog.String("error", err.Error()))
		}
	}

	log.Info("position closed",
		slog.Float64("exit", exit),
		slog.String("fill_source", source),
		slog.Float64("quantity", qty),
		slog.Float64("pnl_percent", res.PnLPercent),
		slog.Float64("pnl_dollars", res.PnLDollars),
	)
	return res, nil
}

// ClosePositionByID closes a single ledger position, leaving any other
// position on the same symbol and its orders in place.
func (e *Executor) ClosePositionByID(ctx context.Context, symbol, id, reason string) (ClosedPosition, error) {
	p, err := e.ledger.Find(symbol, id)
	if err != nil {
		return ClosedPosition{}, fmt.Errorf("executor: close %s/%s: %w", symbol, id, err)
	}
	if len(e.ledger.Get(symbol)) == 1 {
		res, err := e.ClosePosition(ctx, symbol, reason)
		if err != nil {
			return ClosedPosition{}, err
		}
		if len(res.Closed) > 0 {
			return res.Closed[0], nil
		}
		return ClosedPosition{Position: p, ExitPrice: res.ExitPrice, Reason: reason}, nil
	}

	log := e.logger.With(
		slog.String("symbol", symbol),
		slog.String("position_id", id),
		slog.String("reason", reason),
	)
	quote, _ := e.markPrice(ctx, symbol)
	ack, err := e.exch.PlaceMarketOrder(ctx, symbol, p.Side.Opposite(), p.RemainingQuantity, true)
	if err != nil {
		log.Error("close order failed", slog.String("error", err.Error()))
		return ClosedPosition{}, fmt.Errorf("executor: close %s/%s: %w", symbol, id, err)
	}
	exit, _ := e.resolveFillPrice(ctx, symbol, ack, quote)
	e.cancelPositionOrders(ctx, p, log)

	cp := ClosedPosition{
		Position:   p,
		ExitPrice:  exit,
		Quantity:   p.RemainingQuantity,
		PnLPercent: p.PnLPercent(exit),
		PnLDollars: p.PnLDollars(exit),
		Reason:     reason,
		ClosedAt:   e.now(),
	}
	if err := e.ledger.Remove(symbol, id); err != nil {
		log.Error("ledger remove failed", slog.String("error", err.Error()))
	}
	log.Info("position slot closed",
		slog.Float64("exit", exit),
		slog.Float64("pnl_percent", cp.PnLPercent),
	)
	return cp, nil
}

// CloseAll closes every symbol held in the ledger plus any extra symbols
// given (to sweep venue-only positions). Failures are joined, not fatal.
func (e *Executor) CloseAll(ctx context.Context, extra []string, reason string) ([]CloseResult, error) {
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range append(e.ledger.Symbols(), extra...) {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}

	var (
		out  []CloseResult
		errs []error
	)
	for _, s := range symbols {
		res, err := e.ClosePosition(ctx, s, reason)
		if err != nil {
			if errors.Is(err, domain.ErrPositionNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// cancelPositionOrders cancels the stop and open take-profit orders belonging
// to one position.
func (e *Executor) cancelPositionOrders(ctx context.Context, p domain.Position, log *slog.Logger) {
	if p.StopOrderID != "" {
		if err := e.exch.CancelOrder(ctx, p.Symbol, p.StopOrderID); err != nil {
			log.Warn("cancel stop failed", slog.String("order_id", p.StopOrderID), slog.String("error", err.Error()))
		}
	}
	for _, t := range p.TPTiers {
		if t.OrderID == "" || t.Hit {
			continue
		}
		if err := e.exch.CancelOrder(ctx, p.Symbol, t.OrderID); err != nil {
			log.Warn("cancel take-profit failed",
				slog.Int("tier", t.Index),
				slog.String("order_id", t.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
}
