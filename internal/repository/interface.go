package repository

import (
	"context"
	"errors"

	"adversarial-mcp/backend/pkg/models"
)

// ErrNotFound is returned when an entry id has no row.
var ErrNotFound = errors.New("refinement entry not found")

// EntryStore persists refinement entries. Long-term storage is owned by the
// implementation; the orchestrator only creates and mutates entries for runs
// it drives.
type EntryStore interface {
	// Create inserts a new entry and fills in its ID when empty.
	Create(ctx context.Context, entry *models.RefinementEntry) error
	// Update overwrites the mutable fields of an existing entry.
	Update(ctx context.Context, entry *models.RefinementEntry) error
	// Get retrieves an entry by its ID.
	Get(ctx context.Context, id string) (*models.RefinementEntry, error)
}
