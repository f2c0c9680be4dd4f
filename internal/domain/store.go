package domain

import (
	"context"
	"time"
)

// PriceStore persists price observations. Insert reports inserted=false when
// (market, timestamp) already exists; that case is not an error.
type PriceStore interface {
	Insert(ctx context.Context, obs PriceObservation) (inserted bool, err error)
	InsertBatch(ctx context.Context, obs []PriceObservation) (int64, error)
	LatestPerMarket(ctx context.Context, markets []MarketCode, since time.Time) ([]PriceObservation, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]PriceObservation, error)
}

// SpreadStore persists spread records, unique by (market_pair, timestamp).
type SpreadStore interface {
	Insert(ctx context.Context, rec SpreadRecord) (inserted bool, err error)
	ListAfter(ctx context.Context, afterID int64, limit int) ([]SpreadRecord, error)
	MaxID(ctx context.Context) (int64, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]SpreadRecord, error)
}

// AlertStore persists alerts. Acknowledgement is written by operators outside
// this module.
type AlertStore interface {
	Insert(ctx context.Context, a Alert) error
	HasUnacknowledged(ctx context.Context, pair MarketPair, since time.Time) (bool, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Alert, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Operators read it directly
// from the database.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
