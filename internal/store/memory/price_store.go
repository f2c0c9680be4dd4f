// Package memory implements the domain stores in process memory with the same
// unique-key semantics as the PostgreSQL driver. It backs dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

type priceKey struct {
	market domain.MarketCode
	ts     int64
}

// PriceStore keeps observations unique by (market, timestamp).
type PriceStore struct {
	mu   sync.RWMutex
	rows map[priceKey]domain.PriceObservation
}

// NewPriceStore returns an empty store.
func NewPriceStore() *PriceStore {
	return &PriceStore{rows: make(map[priceKey]domain.PriceObservation)}
}

// Insert adds obs unless its key already exists.
func (s *PriceStore) Insert(ctx context.Context, obs domain.PriceObservation) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(obs), nil
}

// InsertBatch inserts every new observation and returns how many were added.
func (s *PriceStore) InsertBatch(ctx context.Context, obs []domain.PriceObservation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range obs {
		if s.insertLocked(o) {
			n++
		}
	}
	return n, nil
}

func (s *PriceStore) insertLocked(obs domain.PriceObservation) bool {
	k := priceKey{market: obs.Market, ts: obs.Timestamp.UnixNano()}
	if _, ok := s.rows[k]; ok {
		return false
	}
	s.rows[k] = obs
	return true
}

// LatestPerMarket returns the newest observation at or after since for each
// requested market. An empty markets list means all markets.
func (s *PriceStore) LatestPerMarket(ctx context.Context, markets []domain.MarketCode, since time.Time) ([]domain.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[domain.MarketCode]bool, len(markets))
	for _, m := range markets {
		want[m] = true
	}

	s.mu.RLock()
	latest := make(map[domain.MarketCode]domain.PriceObservation)
	for _, o := range s.rows {
		if len(want) > 0 && !want[o.Market] {
			continue
		}
		if o.Timestamp.Before(since) {
			continue
		}
		if cur, ok := latest[o.Market]; !ok || o.Timestamp.After(cur.Timestamp) {
			latest[o.Market] = o
		}
	}
	s.mu.RUnlock()

	out := make([]domain.PriceObservation, 0, len(latest))
	for _, o := range latest {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out, nil
}

// ListBetween returns observations with from <= timestamp < to ordered by
// timestamp then market.
func (s *PriceStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []domain.PriceObservation
	for _, o := range s.rows {
		if !o.Timestamp.Before(from) && o.Timestamp.Before(to) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Market < out[j].Market
	})
	return out, nil
}

// Len returns the number of stored observations.
func (s *PriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
