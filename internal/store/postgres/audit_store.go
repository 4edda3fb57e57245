package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// AuditStore is the append-only record of operator and lifecycle events:
// trade transitions, breaker resets and log archive runs.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one entry. A nil detail is stored as SQL NULL.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var raw []byte
	if detail != nil {
		var err error
		if raw, err = json.Marshal(detail); err != nil {
			return fmt.Errorf("postgres: audit %s: encode detail: %w", event, err)
		}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw,
	); err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

const listAuditQuery = `
	SELECT id, event, detail, created_at
	FROM audit_log
	WHERE starts_with(event, @event)
	  AND (@since::timestamptz IS NULL OR created_at >= @since)
	  AND (@until::timestamptz IS NULL OR created_at <= @until)
	ORDER BY created_at DESC, id DESC
	LIMIT NULLIF(@limit::int, 0) OFFSET @offset`

// List returns entries newest first, filtered by opts.Event prefix and the
// time window. opts.Symbol does not apply to the audit log.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, listAuditQuery, pgx.NamedArgs{
		"event":  opts.Event,
		"since":  opts.Since,
		"until":  opts.Until,
		"limit":  opts.Limit,
		"offset": max(opts.Offset, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("decode detail of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}
