package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a PriceStore backed by the given pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

const insertPrice = `
	INSERT INTO prices (market, timestamp, price)
	VALUES ($1, $2, $3)
	ON CONFLICT (market, timestamp) DO NOTHING`

// Insert writes obs. A row that already exists for (market, timestamp) is
// left untouched and reported as inserted=false.
func (s *PriceStore) Insert(ctx context.Context, obs domain.PriceObservation) (bool, error) {
	tag, err := s.pool.Exec(ctx, insertPrice, string(obs.Market), obs.Timestamp, obs.Price)
	if err != nil {
		return false, fmt.Errorf("postgres: insert price %s@%s: %w",
			obs.Market, obs.Timestamp.Format(time.RFC3339), translate(err))
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch writes every observation in one round trip and returns the
// number of new rows.
func (s *PriceStore) InsertBatch(ctx context.Context, obs []domain.PriceObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(insertPrice, string(o.Market), o.Timestamp, o.Price)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range obs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert price batch item %d: %w", i, translate(err))
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

const latestPrices = `
	SELECT DISTINCT ON (market) market, timestamp, price
	FROM prices
	WHERE timestamp >= $1
	  AND (cardinality($2::text[]) = 0 OR market = ANY($2))
	ORDER BY market, timestamp DESC`

// LatestPerMarket returns the newest observation at or after since for each
// requested market. An empty list means every market.
func (s *PriceStore) LatestPerMarket(ctx context.Context, markets []domain.MarketCode, since time.Time) ([]domain.PriceObservation, error) {
	codes := make([]string, len(markets))
	for i, m := range markets {
		codes[i] = string(m)
	}

	rows, err := s.pool.Query(ctx, latestPrices, since, codes)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest prices: %w", err)
	}
	out, err := scanPrices(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan latest prices: %w", err)
	}
	return out, nil
}

// ListBetween returns observations in [from, to) ordered by time.
func (s *PriceStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.PriceObservation, error) {
	const query = `
		SELECT market, timestamp, price
		FROM prices
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp, market`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices: %w", err)
	}
	out, err := scanPrices(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan prices: %w", err)
	}
	return out, nil
}

func scanPrices(rows pgx.Rows) ([]domain.PriceObservation, error) {
	defer rows.Close()
	var out []domain.PriceObservation
	for rows.Next() {
		var (
			o      domain.PriceObservation
			market string
		)
		if err := rows.Scan(&market, &o.Timestamp, &o.Price); err != nil {
			return nil, err
		}
		o.Market = domain.MarketCode(market)
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}
