package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	Symbol string
	// Event filters audit entries by name prefix; other stores ignore it.
	Event  string
}

// TradeStore persists trade lifecycle records.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	InsertBatch(ctx context.Context, recs []TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
}

// DecisionStore persists oracle decisions.
type DecisionStore interface {
	Insert(ctx context.Context, d Decision) error
	List(ctx context.Context, opts ListOpts) ([]Decision, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RiskStateStore persists the circuit-breaker state across restarts.
type RiskStateStore interface {
	Save(ctx context.Context, state RiskState) error
	Load(ctx context.Context) (RiskState, error)
}

// SnapshotStore persists the equity curve.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snap PerformanceSnapshot) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]PerformanceSnapshot, error)
}
