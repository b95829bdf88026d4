package rename

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrResourceNotFound is returned when a resource id matches no row.
var ErrResourceNotFound = errors.New("resource not found")

// Repository handles resource and rename-history PostgreSQL operations.
type Repository interface {
	GetResource(ctx context.Context, resourceID string) (*Resource, error)
	CommitRename(ctx context.Context, resourceID, newName string) error
	RecordOperation(ctx context.Context, record *OperationRecord) error
	History(ctx context.Context, resourceID string, limit int) ([]OperationRecord, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed rename Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) GetResource(ctx context.Context, resourceID string) (*Resource, error) {
	var res Resource
	err := r.pool.QueryRow(ctx,
		`SELECT id, filename, COALESCE(title, ''), COALESCE(alt_text, ''), COALESCE(url, ''),
		        COALESCE(current_name, ''), modified_at
		 FROM media_resources WHERE id = $1`, resourceID).
		Scan(&res.ID, &res.Filename, &res.Title, &res.AltText, &res.URL,
			&res.CurrentName, &res.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("getting resource: %w", err)
	}
	return &res, nil
}

// CommitRename applies the new name and bumps the modification signal, so
// cached artifacts derived from the old state stop matching.
func (r *postgresRepository) CommitRename(ctx context.Context, resourceID, newName string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE media_resources SET current_name = $2, modified_at = NOW() WHERE id = $1`,
		resourceID, newName)
	if err != nil {
		return fmt.Errorf("committing rename: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// RecordOperation appends a history row and trims the per-resource log to
// its retention window in the same transaction.
func (r *postgresRepository) RecordOperation(ctx context.Context, record *OperationRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO rename_history
		   (id, resource_id, owner_id, method, suggestions_considered, selected_name,
		    credits_used, fallback_used, error_occurred, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.ResourceID, record.OwnerID, record.Method,
		record.SuggestionsConsidered, record.SelectedName, record.CreditsUsed,
		record.FallbackUsed, record.ErrorOccurred, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting history row: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM rename_history
		 WHERE resource_id = $1 AND id NOT IN (
		   SELECT id FROM rename_history
		   WHERE resource_id = $1
		   ORDER BY created_at DESC
		   LIMIT $2
		 )`, record.ResourceID, historyRetention)
	if err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) History(ctx context.Context, resourceID string, limit int) ([]OperationRecord, error) {
	if limit < 1 || limit > historyRetention {
		limit = historyRetention
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, resource_id, owner_id, method, suggestions_considered, selected_name,
		        credits_used, fallback_used, error_occurred, created_at
		 FROM rename_history
		 WHERE resource_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		if err := rows.Scan(&rec.ID, &rec.ResourceID, &rec.OwnerID, &rec.Method,
			&rec.SuggestionsConsidered, &rec.SelectedName, &rec.CreditsUsed,
			&rec.FallbackUsed, &rec.ErrorOccurred, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}
