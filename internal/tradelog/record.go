package tradelog

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// DecisionEntry is one line of decisions.jsonl.
type DecisionEntry struct {
	domain.Decision
	MarketPrice float64       `json:"market_price"`
	Regime      domain.Regime `json:"market_regime"`
	Outcome     string        `json:"execution_result,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ErrorEntry is one line of errors.jsonl.
type ErrorEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"error_message"`
	Context   map[string]any `json:"context,omitempty"`
}

// NewErrorEntry captures err with its concrete type name.
func NewErrorEntry(err error, ctx map[string]any, at time.Time) ErrorEntry {
	return ErrorEntry{
		Timestamp: at.UTC(),
		ErrorType: fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Context:   ctx,
	}
}

// OpenRecord builds the trade record of a newly filled position.
func OpenRecord(p domain.Position, reason string) domain.TradeRecord {
	return domain.TradeRecord{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		Event:      domain.TradeOpen,
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		Quantity:   p.OriginalQuantity,
		Leverage:   p.Leverage,
		Confidence: p.Confidence,
		Regime:     p.Regime,
		Strategy:   p.Strategy,
		IsPyramid:  p.IsPyramid,
		Reason:     reason,
		OpenedAt:   p.EntryTime,
		Timestamp:  p.EntryTime,
	}
}

// ExitRecord builds the record of qty of p leaving the book at exitPrice.
// A partial event keeps the position open.
func ExitRecord(p domain.Position, event domain.TradeEvent, qty, exitPrice float64, reason string, at time.Time) domain.TradeRecord {
	rec := OpenRecord(p, reason)
	rec.ID = uuid.NewString()
	rec.Event = event
	rec.ExitPrice = exitPrice
	rec.Quantity = qty
	rec.PnLPercent = p.PnLPercent(exitPrice)
	rec.PnLDollars = (exitPrice - p.EntryPrice) * qty * p.Side.Sign()
	rec.Timestamp = at.UTC()
	return rec
}
