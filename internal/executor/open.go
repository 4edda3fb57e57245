package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// PyramidInfo links a scale-in entry to the first position on its symbol.
type PyramidInfo struct {
	FirstPositionID string
}

// OpenRequest describes an approved entry.
type OpenRequest struct {
	Symbol        string
	Side          domain.Side
	Notional      float64
	Leverage      int
	StopLossPct   float64
	TakeProfitPct float64
	Confidence    float64
	Regime        domain.Regime
	Strategy      domain.StrategyType
	Pyramid       *PyramidInfo
}

// OpenResult is the outcome of an entry. Legs records which orders the
// venue accepted; a missing stop or take-profit leg does not undo the entry.
type OpenResult struct {
	Position    domain.Position `json:"position"`
	FilledPrice float64         `json:"filled_price"`
	Quantity    float64         `json:"quantity"`
	FillSource  string          `json:"fill_source"`
	OrderRefs   []string        `json:"order_refs"`
	Legs        Legs            `json:"legs"`
}

// OpenPosition places the market entry, the protective stop and the
// take-profit ladder, then records the position.
func (e *Executor) OpenPosition(ctx context.Context, req OpenRequest) (OpenResult, error) {
	if !req.Side.Valid() {
		return OpenResult{}, &domain.ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %q", req.Side)}
	}
	if req.Notional <= 0 || req.Leverage < 1 {
		return OpenResult{}, &domain.ValidationError{Field: "notional", Reason: "notional and leverage must be positive"}
	}

	key := guardKey(req.Symbol, req.Side)
	if !e.guard.claim(key) {
		return OpenResult{}, fmt.Errorf("executor: open %s %s: %w", req.Symbol, req.Side, domain.ErrDuplicateEntry)
	}

	log := e.logger.With(
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
	)

	res, err := e.openPosition(ctx, req, log)
	if err != nil && !res.Legs.Entry {
		e.guard.release(key)
	}
	return res, err
}

func (e *Executor) openPosition(ctx context.Context, req OpenRequest, log *slog.Logger) (OpenResult, error) {
	var res OpenResult

	rules, err := e.tradingRules(ctx, req.Symbol)
	if err != nil {
		return res, err
	}
	if err := e.exch.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
		return res, fmt.Errorf("executor: set leverage %s %dx: %w", req.Symbol, req.Leverage, err)
	}

	quote, err := e.markPrice(ctx, req.Symbol)
	if err != nil {
		return res, err
	}

	qty := floorToStep(req.Notional/quote, rules.QuantityStep)
	if !tradable(rules, qty, quote) {
		qty = minTradable(rules, quote)
		log.Info("entry quantity rounded up to minimum tradable unit",
			slog.Float64("quantity", qty),
			slog.Float64("notional", req.Notional),
		)
	}

	ack, err := e.exch.PlaceMarketOrder(ctx, req.Symbol, req.Side, qty, false)
	if err != nil {
		log.Error("entry order failed", slog.String("error", err.Error()))
		return res, fmt.Errorf("executor: entry %s: %w", req.Symbol, err)
	}
	res.Legs.Entry = true
	res.OrderRefs = append(res.OrderRefs, ack.OrderID)
	if ack.ExecutedQty > 0 {
		qty = ack.ExecutedQty
	}

	entry, source := e.resolveFillPrice(ctx, req.Symbol, ack, quote)
	res.FilledPrice = entry
	res.FillSource = source
	res.Quantity = qty

	pos := domain.Position{
		ID:                uuid.NewString(),
		Symbol:            req.Symbol,
		Side:              req.Side,
		EntryPrice:        entry,
		OriginalQuantity:  qty,
		RemainingQuantity: qty,
		Leverage:          req.Leverage,
		EntryTime:         e.now(),
		Trailing:          domain.TrailingState{TrailType: domain.TrailTight},
		Confidence:        req.Confidence,
		StopLossPercent:   req.StopLossPct,
		TakeProfitPercent: req.TakeProfitPct,
		Regime:            req.Regime,
		Strategy:          req.Strategy,
	}
	if req.Pyramid != nil {
		pos.IsPyramid = true
		pos.PyramidOf = req.Pyramid.FirstPositionID
	}

	stop := stopFor(req.Side, entry, req.StopLossPct, rules.PriceTick)
	if sack, err := e.exch.PlaceStopOrder(ctx, req.Symbol, req.Side.Opposite(), stop, qty); err != nil {
		log.Error("stop-loss leg failed", slog.Float64("stop", stop), slog.String("error", err.Error()))
	} else {
		res.Legs.StopLoss = true
		pos.StopOrderID = sack.OrderID
		pos.StopPrice = stop
		res.OrderRefs = append(res.OrderRefs, sack.OrderID)
	}

	pos.TPTiers = e.buildLadder(req.Side, entry, qty, rules)
	res.Legs.TakeProfit = make([]bool, len(pos.TPTiers))
	for i := range pos.TPTiers {
		t := &pos.TPTiers[i]
		if t.Skipped {
			continue
		}
		price := roundToStep(pos.TierTargetPrice(*t), rules.PriceTick)
		tack, err := e.exch.PlaceTakeProfitOrder(ctx, req.Symbol, req.Side.Opposite(), price, t.Quantity)
		if err != nil {
			log.Warn("take-profit leg omitted",
				slog.Int("tier", t.Index),
				slog.Float64("price", price),
				slog.String("error", err.Error()),
			)
			t.Skipped = true
			continue
		}
		t.OrderID = tack.OrderID
		res.Legs.TakeProfit[i] = true
		res.OrderRefs = append(res.OrderRefs, tack.OrderID)
	}

	if err := e.ledger.Add(pos); err != nil {
		log.Error("filled entry could not be recorded", slog.String("error", err.Error()))
		res.Position = pos
		return res, fmt.Errorf("executor: record %s: %w", req.Symbol, err)
	}
	res.Position = pos

	log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.Float64("entry", entry),
		slog.String("fill_source", source),
		slog.Float64("quantity", qty),
		slog.Int("leverage", req.Leverage),
		slog.Bool("pyramid", pos.IsPyramid),
		slog.Bool("all_legs", res.Legs.Complete()),
	)
	return res, nil
}

// buildLadder splits qty over the configured tiers. The last tier takes the
// remainder; a tier below the venue minimum is rounded up when quantity
// allows and skipped otherwise.
func (e *Executor) buildLadder(side domain.Side, entry, qty float64, rules domain.TradingRules) []domain.TPTier {
	tiers := make([]domain.TPTier, len(e.cfg.TPLadder))
	left := qty
	for i, spec := range e.cfg.TPLadder {
		t := domain.TPTier{
			Index:            i + 1,
			TargetPercent:    spec.TargetPercent,
			QuantityFraction: spec.QuantityFraction,
		}
		price := entry * (1 + side.Sign()*spec.TargetPercent/100)

		q := floorToStep(qty*spec.QuantityFraction, rules.QuantityStep)
		if i == len(e.cfg.TPLadder)-1 {
			q = floorToStep(left, rules.QuantityStep)
		}
		if !tradable(rules, q, price) {
			q = minTradable(rules, price)
		}
		if exceeds(q, left) || q <= 0 {
			t.Skipped = true
			tiers[i] = t
			continue
		}
		t.Quantity = q
		left = roundToStep(subQty(left, q), rules.QuantityStep)
		tiers[i] = t
	}
	return tiers
}
