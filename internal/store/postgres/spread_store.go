package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// SpreadStore implements domain.SpreadStore using PostgreSQL.
type SpreadStore struct {
	pool *pgxpool.Pool
}

// NewSpreadStore creates a SpreadStore backed by the given pool.
func NewSpreadStore(pool *pgxpool.Pool) *SpreadStore {
	return &SpreadStore{pool: pool}
}

const spreadCols = `id, market_pair, timestamp, spread, net_opportunity,
	transmission_cost, low_market, low_price, high_market, high_price`

const insertSpread = `
	INSERT INTO spreads (
		market_pair, timestamp, spread, net_opportunity, transmission_cost,
		low_market, low_price, high_market, high_price
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (market_pair, timestamp) DO NOTHING`

// Insert writes rec unless (market_pair, timestamp) already exists.
func (s *SpreadStore) Insert(ctx context.Context, rec domain.SpreadRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertSpread,
		rec.MarketPair.String(), rec.Timestamp,
		rec.Spread, rec.NetOpportunity, rec.TransmissionCost,
		string(rec.LowMarket), rec.LowPrice,
		string(rec.HighMarket), rec.HighPrice,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert spread %s: %w", rec.MarketPair, translate(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ListAfter returns up to limit spreads with id > afterID in id order.
func (s *SpreadStore) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.SpreadRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+spreadCols+` FROM spreads WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list spreads after %d: %w", afterID, err)
	}
	out, err := scanSpreads(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan spreads: %w", err)
	}
	return out, nil
}

// MaxID returns the highest spread id, or 0 for an empty table.
func (s *SpreadStore) MaxID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM spreads`).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: max spread id: %w", err)
	}
	return id, nil
}

// ListBetween returns spreads with timestamp in [from, to).
func (s *SpreadStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.SpreadRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+spreadCols+` FROM spreads WHERE timestamp >= $1 AND timestamp < $2 ORDER BY id`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list spreads: %w", err)
	}
	out, err := scanSpreads(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan spreads: %w", err)
	}
	return out, nil
}

func scanSpreads(rows pgx.Rows) ([]domain.SpreadRecord, error) {
	defer rows.Close()
	var out []domain.SpreadRecord
	for rows.Next() {
		var (
			r               domain.SpreadRecord
			pair, low, high string
		)
		if err := rows.Scan(
			&r.ID, &pair, &r.Timestamp, &r.Spread, &r.NetOpportunity,
			&r.TransmissionCost, &low, &r.LowPrice, &high, &r.HighPrice,
		); err != nil {
			return nil, err
		}
		mp, ok := domain.ParseMarketPair(pair)
		if !ok {
			return nil, fmt.Errorf("spread %d: malformed market pair %q", r.ID, pair)
		}
		r.MarketPair = mp
		r.LowMarket = domain.MarketCode(low)
		r.HighMarket = domain.MarketCode(high)
		r.Timestamp = r.Timestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
