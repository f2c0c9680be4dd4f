package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// AlertStore keeps alerts in insertion order.
type AlertStore struct {
	mu   sync.RWMutex
	rows []domain.Alert
}

// NewAlertStore returns an empty store.
func NewAlertStore() *AlertStore {
	return &AlertStore{}
}

// Insert appends a. Ids must be unique.
func (s *AlertStore) Insert(ctx context.Context, a domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == a.ID {
			return fmt.Errorf("memory: alert %s: %w", a.ID, domain.ErrDuplicate)
		}
	}
	s.rows = append(s.rows, a)
	return nil
}

// HasUnacknowledged reports whether pair has an open alert created at or
// after since.
func (s *AlertStore) HasUnacknowledged(ctx context.Context, pair domain.MarketPair, since time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		if r.MarketPair == pair && !r.Acknowledged && !r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ListBetween returns alerts created in [from, to).
func (s *AlertStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Alert
	for _, r := range s.rows {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Acknowledge marks an alert handled, as an operator would.
func (s *AlertStore) Acknowledge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("memory: alert %s: %w", id, domain.ErrNotFound)
}

// All returns a copy of every stored alert.
func (s *AlertStore) All() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, len(s.rows))
	copy(out, s.rows)
	return out
}
