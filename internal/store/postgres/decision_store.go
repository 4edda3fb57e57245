package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

var _ domain.DecisionStore = (*DecisionStore)(nil)

// NewDecisionStore creates a new DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Insert stores one oracle decision.
func (s *DecisionStore) Insert(ctx context.Context, d domain.Decision) error {
	const query = `
		INSERT INTO decisions (
			symbol, action, confidence, position_size_percent, leverage, entry_reason,
			stop_loss_percent, take_profit_percent, urgency, strategy, source, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.pool.Exec(ctx, query,
		d.Symbol, string(d.Action), d.Confidence, d.PositionSizePercent, d.Leverage, d.EntryReason,
		d.StopLossPercent, d.TakeProfitPercent, string(d.Urgency), d.Strategy.String(), string(d.Source), d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision %s: %w", d.Symbol, err)
	}
	return nil
}

// List returns decisions newest first.
func (s *DecisionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Decision, error) {
	query, args := listQuery(`SELECT symbol, action, confidence, position_size_percent, leverage,
		entry_reason, stop_loss_percent, take_profit_percent, urgency, strategy, source, decided_at
		FROM decisions WHERE 1=1`, "decided_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		var (
			d                                 domain.Decision
			action, urgency, strategy, source string
		)
		if err := rows.Scan(
			&d.Symbol, &action, &d.Confidence, &d.PositionSizePercent, &d.Leverage,
			&d.EntryReason, &d.StopLossPercent, &d.TakeProfitPercent, &urgency, &strategy, &source, &d.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		d.Action = domain.Action(action)
		d.Urgency = domain.Urgency(urgency)
		d.Strategy = domain.ParseStrategy(strategy)
		d.Source = domain.DecisionSource(source)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return out, nil
}
