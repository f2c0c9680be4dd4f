package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/inthegrid/internal/domain"
)

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu   sync.RWMutex
	rows []domain.AuditEntry
}

// NewAuditStore returns an empty log.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Log appends an entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, domain.AuditEntry{
		ID:        int64(len(s.rows) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Entries returns a copy of the log, oldest first.
func (s *AuditStore) Entries() []domain.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(s.rows))
	copy(out, s.rows)
	return out
}
