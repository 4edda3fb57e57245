package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// RiskStateStore keeps the single circuit-breaker state row.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

var _ domain.RiskStateStore = (*RiskStateStore)(nil)

// NewRiskStateStore creates a new RiskStateStore backed by the given pool.
func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Save upserts the state.
func (s *RiskStateStore) Save(ctx context.Context, st domain.RiskState) error {
	const query = `
		INSERT INTO risk_state (
			id, peak_value, current_value, level, paused_until, paused_level, halted,
			daily_start_value, trades_today, last_reset_date, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			peak_value = EXCLUDED.peak_value,
			current_value = EXCLUDED.current_value,
			level = EXCLUDED.level,
			paused_until = EXCLUDED.paused_until,
			paused_level = EXCLUDED.paused_level,
			halted = EXCLUDED.halted,
			daily_start_value = EXCLUDED.daily_start_value,
			trades_today = EXCLUDED.trades_today,
			last_reset_date = EXCLUDED.last_reset_date,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, query,
		st.PeakValue, st.CurrentValue, int16(st.Level), st.PausedUntil, int16(st.PausedLevel), st.Halted,
		st.DailyStartValue, st.TradesToday, st.LastResetDate, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk state: %w", err)
	}
	return nil
}

// Load returns the persisted state, or domain.ErrNotFound on a fresh
// database.
func (s *RiskStateStore) Load(ctx context.Context) (domain.RiskState, error) {
	const query = `
		SELECT peak_value, current_value, level, paused_until, paused_level, halted,
			daily_start_value, trades_today, last_reset_date, updated_at
		FROM risk_state WHERE id = 1`
	var (
		st                 domain.RiskState
		level, pausedLevel int16
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.PeakValue, &st.CurrentValue, &level, &st.PausedUntil, &pausedLevel, &st.Halted,
		&st.DailyStartValue, &st.TradesToday, &st.LastResetDate, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}
	st.Level = domain.BreakerLevel(level)
	st.PausedLevel = domain.BreakerLevel(pausedLevel)
	return st, nil
}
