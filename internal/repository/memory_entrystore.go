package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"adversarial-mcp/backend/pkg/models"
)

// MemoryEntryStore is an in-memory EntryStore used by the one-shot CLI and by
// tests. Entries do not survive the process.
type MemoryEntryStore struct {
	mu      sync.RWMutex
	entries map[string]models.RefinementEntry
}

// NewMemoryEntryStore creates an empty in-memory store.
func NewMemoryEntryStore() *MemoryEntryStore {
	return &MemoryEntryStore{entries: make(map[string]models.RefinementEntry)}
}

func (s *MemoryEntryStore) Create(_ context.Context, entry *models.RefinementEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = *entry
	return nil
}

func (s *MemoryEntryStore) Update(_ context.Context, entry *models.RefinementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return ErrNotFound
	}
	entry.UpdatedAt = time.Now().UTC()
	s.entries[entry.ID] = *entry
	return nil
}

func (s *MemoryEntryStore) Get(_ context.Context, id string) (*models.RefinementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// List returns a snapshot of every stored entry, in no particular order.
func (s *MemoryEntryStore) List() []*models.RefinementEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RefinementEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		e := entry
		out = append(out, &e)
	}
	return out
}

var _ EntryStore = (*MemoryEntryStore)(nil)
