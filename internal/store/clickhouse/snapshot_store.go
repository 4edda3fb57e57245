package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore.
type SnapshotStore struct {
	conn *Conn
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// InsertSnapshot appends one equity-curve point.
func (s *SnapshotStore) InsertSnapshot(ctx context.Context, snap domain.PerformanceSnapshot) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO performance_snapshots (
			ts, cycle, total_value, available, unrealized_pnl,
			peak_value, drawdown, breaker_level, open_positions
		)`)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare snapshot batch: %w", err)
	}
	if err := batch.Append(
		snap.Timestamp.UTC(), snap.Cycle, snap.TotalValue, snap.Available, snap.UnrealizedPnL,
		snap.PeakValue, snap.Drawdown, uint8(snap.BreakerLevel), uint16(snap.OpenPositions),
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("clickhouse: append snapshot: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send snapshot: %w", err)
	}
	return nil
}

// ListSince returns snapshots at or after since in time order.
func (s *SnapshotStore) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.PerformanceSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.conn.Query(ctx, `
		SELECT ts, cycle, total_value, available, unrealized_pnl,
			peak_value, drawdown, breaker_level, open_positions
		FROM performance_snapshots
		WHERE ts >= ?
		ORDER BY ts ASC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PerformanceSnapshot
	for rows.Next() {
		var (
			snap      domain.PerformanceSnapshot
			level     uint8
			positions uint16
		)
		if err := rows.Scan(
			&snap.Timestamp, &snap.Cycle, &snap.TotalValue, &snap.Available, &snap.UnrealizedPnL,
			&snap.PeakValue, &snap.Drawdown, &level, &positions,
		); err != nil {
			return nil, fmt.Errorf("clickhouse: scan snapshot: %w", err)
		}
		snap.BreakerLevel = domain.BreakerLevel(level)
		snap.OpenPositions = int(positions)
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse: snapshot rows: %w", err)
	}
	return out, nil
}
