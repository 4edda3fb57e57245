package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, event, symbol, side, entry_price, exit_price,
	quantity, leverage, pnl_percent, pnl_dollars, confidence, regime, strategy,
	is_pyramid, reason, opened_at, ts`

// Records are immutable; replaying one is a no-op.
const insertTrade = `
	INSERT INTO trades (
		id, position_id, event, symbol, side, entry_price, exit_price,
		quantity, leverage, pnl_percent, pnl_dollars, confidence, regime, strategy,
		is_pyramid, reason, opened_at, ts
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18
	) ON CONFLICT (id) DO NOTHING`

func tradeArgs(r domain.TradeRecord) []any {
	return []any{
		r.ID, r.PositionID, string(r.Event), r.Symbol, string(r.Side), r.EntryPrice, r.ExitPrice,
		r.Quantity, r.Leverage, r.PnLPercent, r.PnLDollars, r.Confidence, r.Regime.String(), r.Strategy.String(),
		r.IsPyramid, r.Reason, r.OpenedAt, r.Timestamp,
	}
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		var (
			r                domain.TradeRecord
			event, side      string
			regime, strategy string
		)
		if err := rows.Scan(
			&r.ID, &r.PositionID, &event, &r.Symbol, &side, &r.EntryPrice, &r.ExitPrice,
			&r.Quantity, &r.Leverage, &r.PnLPercent, &r.PnLDollars, &r.Confidence, &regime, &strategy,
			&r.IsPyramid, &r.Reason, &r.OpenedAt, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		r.Event = domain.TradeEvent(event)
		r.Side = domain.Side(side)
		r.Regime = domain.ParseRegime(regime)
		r.Strategy = domain.ParseStrategy(strategy)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert stores one trade record.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	if _, err := s.pool.Exec(ctx, insertTrade, tradeArgs(rec)...); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// InsertBatch inserts multiple records with a pgx Batch.
func (s *TradeStore) InsertBatch(ctx context.Context, recs []domain.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(insertTrade, tradeArgs(r)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns trade records newest first with optional symbol and time
// filters.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, "ts", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// listQuery appends the ListOpts filters, newest-first ordering and
// pagination to base.
func listQuery(base, tsCol string, opts domain.ListOpts) (string, []any) {
	query := base
	var args []any
	argIdx := 1

	if opts.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, opts.Symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", tsCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", tsCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + tsCol + " DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
