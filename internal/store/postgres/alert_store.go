package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert writes a new alert. acknowledged always starts false.
func (s *AlertStore) Insert(ctx context.Context, a domain.Alert) error {
	const query = `
		INSERT INTO alerts (id, market_pair, spread, net_opportunity, priority, message, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.MarketPair.String(), a.Spread, a.NetOpportunity,
		string(a.Priority), a.Message, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", a.ID, translate(err))
	}
	return nil
}

// HasUnacknowledged reports whether pair has an open alert created at or
// after since.
func (s *AlertStore) HasUnacknowledged(ctx context.Context, pair domain.MarketPair, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE market_pair = $1 AND NOT acknowledged AND created_at >= $2
		)`
	var open bool
	if err := s.pool.QueryRow(ctx, query, pair.String(), since).Scan(&open); err != nil {
		return false, fmt.Errorf("postgres: check open alerts %s: %w", pair, err)
	}
	return open, nil
}

// ListBetween returns alerts created in [from, to).
func (s *AlertStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	const query = `
		SELECT id::text, market_pair, spread, net_opportunity, priority, message, acknowledged, created_at
		FROM alerts
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	out, err := scanAlerts(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts: %w", err)
	}
	return out, nil
}

func scanAlerts(rows pgx.Rows) ([]domain.Alert, error) {
	defer rows.Close()
	var out []domain.Alert
	for rows.Next() {
		var (
			a              domain.Alert
			pair, priority string
		)
		if err := rows.Scan(&a.ID, &pair, &a.Spread, &a.NetOpportunity,
			&priority, &a.Message, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, err
		}
		mp, ok := domain.ParseMarketPair(pair)
		if !ok {
			return nil, fmt.Errorf("alert %s: malformed market pair %q", a.ID, pair)
		}
		a.MarketPair = mp
		a.Priority = domain.Priority(priority)
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
