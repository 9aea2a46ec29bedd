package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adversarial-mcp/backend/pkg/models"
)

// PostgresEntryStore is a PostgreSQL implementation of the EntryStore interface.
type PostgresEntryStore struct {
	db *pgxpool.Pool
}

// NewPostgresEntryStore creates a new PostgresEntryStore.
func NewPostgresEntryStore(db *pgxpool.Pool) *PostgresEntryStore {
	return &PostgresEntryStore{db: db}
}

// Create inserts a new entry, assigning an id when the caller left it empty.
func (s *PostgresEntryStore) Create(ctx context.Context, entry *models.RefinementEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO refinement_entries
		 (id, prompt, language, features, status, generated_code, bug_report, severity,
		  iteration_count, features_implemented, duration_seconds, error_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.Prompt, entry.Language, entry.Features, entry.Status,
		entry.GeneratedCode, entry.BugReport, entry.Severity,
		entry.IterationCount, entry.FeaturesImplemented, entry.DurationSeconds,
		entry.ErrorText, entry.CreatedAt, entry.UpdatedAt)
	return err
}

// Update overwrites the mutable fields of an existing entry.
func (s *PostgresEntryStore) Update(ctx context.Context, entry *models.RefinementEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	tag, err := s.db.Exec(ctx,
		`UPDATE refinement_entries
		 SET status = $1, generated_code = $2, bug_report = $3, severity = $4,
		     iteration_count = $5, features_implemented = $6, duration_seconds = $7,
		     error_text = $8, updated_at = $9, completed_at = $10
		 WHERE id = $11`,
		entry.Status, entry.GeneratedCode, entry.BugReport, entry.Severity,
		entry.IterationCount, entry.FeaturesImplemented, entry.DurationSeconds,
		entry.ErrorText, entry.UpdatedAt, entry.CompletedAt, entry.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves an entry by its ID.
func (s *PostgresEntryStore) Get(ctx context.Context, id string) (*models.RefinementEntry, error) {
	var entry models.RefinementEntry
	err := s.db.QueryRow(ctx,
		`SELECT id, prompt, language, features, status, generated_code, bug_report, severity,
		        iteration_count, features_implemented, duration_seconds, error_text,
		        created_at, updated_at, completed_at
		 FROM refinement_entries WHERE id = $1`, id).
		Scan(&entry.ID, &entry.Prompt, &entry.Language, &entry.Features, &entry.Status,
			&entry.GeneratedCode, &entry.BugReport, &entry.Severity,
			&entry.IterationCount, &entry.FeaturesImplemented, &entry.DurationSeconds,
			&entry.ErrorText, &entry.CreatedAt, &entry.UpdatedAt, &entry.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

var _ EntryStore = (*PostgresEntryStore)(nil)
