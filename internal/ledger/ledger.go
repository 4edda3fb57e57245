// Package ledger holds the in-memory state of all open positions.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Ledger maps symbol to its open positions, first position first. The cycle
// loop is the only writer; the lock keeps HTTP readers linearizable with it.
type Ledger struct {
	maxPerSymbol int

	mu        sync.RWMutex
	positions map[string][]*domain.Position
}

// New creates an empty ledger with a per-symbol position cap.
func New(maxPerSymbol int) *Ledger {
	if maxPerSymbol < 1 {
		maxPerSymbol = 1
	}
	return &Ledger{
		maxPerSymbol: maxPerSymbol,
		positions:    make(map[string][]*domain.Position),
	}
}

// Add records a newly filled position.
func (l *Ledger) Add(p domain.Position) error {
	if p.RemainingQuantity <= 0 {
		return fmt.Errorf("ledger: add %s: remaining quantity must be positive", p.Symbol)
	}
	if p.RemainingQuantity > p.OriginalQuantity {
		return fmt.Errorf("ledger: add %s: remaining %.8f exceeds original %.8f",
			p.Symbol, p.RemainingQuantity, p.OriginalQuantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.positions[p.Symbol]
	if len(existing) >= l.maxPerSymbol {
		return fmt.Errorf("ledger: add %s: %w", p.Symbol, domain.ErrSymbolCapReached)
	}
	if len(existing) > 0 {
		first := existing[0]
		if p.Side != first.Side {
			return fmt.Errorf("ledger: add %s: %w", p.Symbol, domain.ErrPyramidSide)
		}
		p.IsPyramid = true
		p.PyramidOf = first.ID
	}
	for _, e := range existing {
		if e.ID == p.ID {
			return fmt.Errorf("ledger: add %s/%s: %w", p.Symbol, p.ID, domain.ErrAlreadyExists)
		}
	}

	c := p.Clone()
	l.positions[p.Symbol] = append(existing, &c)
	return nil
}

// Get returns copies of the open positions on symbol.
func (l *Ledger) Get(symbol string) []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.positions[symbol]
	out := make([]domain.Position, 0, len(src))
	for _, p := range src {
		out = append(out, p.Clone())
	}
	return out
}

// Find returns a copy of one position.
func (l *Ledger) Find(symbol, id string) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, err := l.lookup(symbol, id)
	if err != nil {
		return domain.Position{}, err
	}
	return p.Clone(), nil
}

// All returns copies of every open position ordered by symbol.
func (l *Ledger) All() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Position
	for _, sym := range l.sortedSymbols() {
		for _, p := range l.positions[sym] {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Symbols returns the symbols with open positions in sorted order.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedSymbols()
}

// Count returns the total number of open positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, ps := range l.positions {
		n += len(ps)
	}
	return n
}

// UpdateRemaining lowers a position's remaining quantity and logs the exit.
// Reaching zero removes the position.
func (l *Ledger) UpdateRemaining(symbol, id string, newQty float64, exit domain.PartialExit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(symbol, id)
	if err != nil {
		return err
	}
	if newQty >= p.RemainingQuantity {
		return fmt.Errorf("ledger: update %s/%s to %.8f from %.8f: %w",
			symbol, id, newQty, p.RemainingQuantity, domain.ErrQuantityIncrease)
	}
	if newQty < 0 {
		newQty = 0
	}
	if exit.Quantity == 0 {
		exit.Quantity = p.RemainingQuantity - newQty
	}
	if exit.FractionClosed == 0 {
		exit.FractionClosed = exit.Quantity / p.RemainingQuantity
	}
	if exit.Timestamp.IsZero() {
		exit.Timestamp = time.Now().UTC()
	}
	p.PartialExits = append(p.PartialExits, exit)
	p.RemainingQuantity = newQty

	if newQty == 0 {
		l.removeLocked(symbol, id)
	}
	return nil
}

// Remove drops a position.
func (l *Ledger) Remove(symbol, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.lookup(symbol, id); err != nil {
		return err
	}
	l.removeLocked(symbol, id)
	return nil
}

// MarkTPTierHit marks a take-profit tier as reached.
func (l *Ledger) MarkTPTierHit(symbol, id string, tierIndex int) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		for i := range p.TPTiers {
			if p.TPTiers[i].Index == tierIndex {
				p.TPTiers[i].Hit = true
				return nil
			}
		}
		return fmt.Errorf("ledger: %s/%s has no tier %d: %w", symbol, id, tierIndex, domain.ErrNotFound)
	})
}

// SetTPOrder records the resting order of a tier and the quantity it was
// placed for. An empty orderID clears the tier and marks it skipped.
func (l *Ledger) SetTPOrder(symbol, id string, tierIndex int, orderID string, qty float64) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		for i := range p.TPTiers {
			if p.TPTiers[i].Index == tierIndex {
				if orderID == "" {
					qty = 0
				}
				p.TPTiers[i].OrderID = orderID
				p.TPTiers[i].Quantity = qty
				p.TPTiers[i].Skipped = orderID == ""
				return nil
			}
		}
		return fmt.Errorf("ledger: %s/%s has no tier %d: %w", symbol, id, tierIndex, domain.ErrNotFound)
	})
}

// SetTrailing replaces the trailing state. Once trailing is active the stop
// may only move in the position's favour.
func (l *Ledger) SetTrailing(symbol, id string, ts domain.TrailingState) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		cur := p.Trailing
		if cur.Active && cur.CurrentStopPrice > 0 && ts.CurrentStopPrice != cur.CurrentStopPrice {
			if !p.IsMoreFavorableStop(ts.CurrentStopPrice, cur.CurrentStopPrice) {
				return fmt.Errorf("ledger: trailing %s/%s %.8f -> %.8f: %w",
					symbol, id, cur.CurrentStopPrice, ts.CurrentStopPrice, domain.ErrStopLoosened)
			}
		}
		if cur.Active && ts.CurrentStopPrice == 0 {
			ts.CurrentStopPrice = cur.CurrentStopPrice
		}
		p.Trailing = ts
		if ts.CurrentStopPrice > 0 {
			p.StopPrice = ts.CurrentStopPrice
		}
		return nil
	})
}

// TightenStop records a new resting stop. A stop that would loosen the
// current one is refused.
func (l *Ledger) TightenStop(symbol, id string, price float64, orderID string) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		if p.StopPrice > 0 && price != p.StopPrice && !p.IsMoreFavorableStop(price, p.StopPrice) {
			return fmt.Errorf("ledger: stop %s/%s %.8f -> %.8f: %w",
				symbol, id, p.StopPrice, price, domain.ErrStopLoosened)
		}
		p.StopPrice = price
		p.StopOrderID = orderID
		if p.Trailing.Active {
			p.Trailing.CurrentStopPrice = price
		}
		return nil
	})
}

// SetStopOrder records the resting stop order id without moving the price.
func (l *Ledger) SetStopOrder(symbol, id, orderID string) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		p.StopOrderID = orderID
		return nil
	})
}

// SetProfitLocked flags the quick profit lock as applied.
func (l *Ledger) SetProfitLocked(symbol, id string) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		p.ProfitLocked = true
		return nil
	})
}

// SetFlatSince records when the position entered (or, with nil, left) the
// stale PnL band.
func (l *Ledger) SetFlatSince(symbol, id string, at *time.Time) error {
	return l.mutate(symbol, id, func(p *domain.Position) error {
		if at == nil {
			p.FlatSince = nil
			return nil
		}
		t := *at
		p.FlatSince = &t
		return nil
	})
}

func (l *Ledger) mutate(symbol, id string, fn func(p *domain.Position) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(symbol, id)
	if err != nil {
		return err
	}
	return fn(p)
}

func (l *Ledger) lookup(symbol, id string) (*domain.Position, error) {
	for _, p := range l.positions[symbol] {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("ledger: %s/%s: %w", symbol, id, domain.ErrPositionNotFound)
}

func (l *Ledger) removeLocked(symbol, id string) {
	src := l.positions[symbol]
	out := src[:0]
	for _, p := range src {
		if p.ID != id {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		delete(l.positions, symbol)
		return
	}
	// A surviving pyramid becomes the first position.
	if out[0].IsPyramid {
		out[0].IsPyramid = false
		out[0].PyramidOf = ""
		for _, p := range out[1:] {
			p.PyramidOf = out[0].ID
		}
	}
	l.positions[symbol] = out
}

func (l *Ledger) sortedSymbols() []string {
	syms := make([]string, 0, len(l.positions))
	for s := range l.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
