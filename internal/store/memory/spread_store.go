package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

type spreadKey struct {
	pair string
	ts   int64
}

// SpreadStore keeps spread records unique by (market_pair, timestamp) and
// assigns increasing ids.
type SpreadStore struct {
	mu     sync.RWMutex
	nextID int64
	keys   map[spreadKey]struct{}
	rows   []domain.SpreadRecord
}

// NewSpreadStore returns an empty store.
func NewSpreadStore() *SpreadStore {
	return &SpreadStore{keys: make(map[spreadKey]struct{})}
}

// Insert appends rec unless its key already exists.
func (s *SpreadStore) Insert(ctx context.Context, rec domain.SpreadRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := spreadKey{pair: rec.MarketPair.String(), ts: rec.Timestamp.UnixNano()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	s.keys[k] = struct{}{}
	s.nextID++
	rec.ID = s.nextID
	s.rows = append(s.rows, rec)
	return true, nil
}

// ListAfter returns up to limit records with id > afterID in id order.
func (s *SpreadStore) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.SpreadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.rows), func(i int) bool { return s.rows[i].ID > afterID })
	end := len(s.rows)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	out := make([]domain.SpreadRecord, end-i)
	copy(out, s.rows[i:end])
	return out, nil
}

// MaxID returns the highest assigned id, or 0 when empty.
func (s *SpreadStore) MaxID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID, nil
}

// ListBetween returns records with from <= timestamp < to in id order.
func (s *SpreadStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.SpreadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SpreadRecord
	for _, r := range s.rows {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}
