package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ObjectRepository implements storage.ObjectMemoryRepository on PostgreSQL.
type ObjectRepository struct {
	db *sql.DB
}

// NewObjectRepository creates an object repository on an open pool.
func NewObjectRepository(db *sql.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// Upsert applies last-confirmed-wins. INSERT ... ON CONFLICT takes a row lock
// on the conflicting label, so concurrent writers serialize per key.
func (r *ObjectRepository) Upsert(ctx context.Context, sighting types.ObjectSighting) (bool, error) {
	label := types.NormalizeLabel(sighting.Label)
	if label == "" {
		return false, fmt.Errorf("%w: label is required", storage.ErrInvalidInput)
	}
	confirmation := sighting.ConfirmationType
	if confirmation == "" {
		confirmation = types.ConfirmedVisual
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO object_sightings (label, source_record_id, confirmed_at, base_confidence, confirmation_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(label) DO UPDATE SET
			source_record_id = excluded.source_record_id,
			confirmed_at = excluded.confirmed_at,
			base_confidence = excluded.base_confidence,
			confirmation_type = excluded.confirmation_type
		WHERE excluded.confirmed_at >= object_sightings.confirmed_at
	`, label, sighting.SourceRecordID, sighting.ConfirmedAt, sighting.BaseConfidence, string(confirmation))
	if err != nil {
		return false, fmt.Errorf("postgres: failed to upsert sighting: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// Get retrieves the live sighting for a label.
func (r *ObjectRepository) Get(ctx context.Context, label string) (*types.ObjectSighting, error) {
	var s types.ObjectSighting
	var confirmation string

	err := r.db.QueryRowContext(ctx, `
		SELECT label, source_record_id, confirmed_at, base_confidence, confirmation_type
		FROM object_sightings WHERE label = $1
	`, types.NormalizeLabel(label)).Scan(&s.Label, &s.SourceRecordID, &s.ConfirmedAt, &s.BaseConfidence, &confirmation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get sighting: %w", err)
	}
	s.ConfirmationType = types.ConfirmationType(confirmation)
	return &s, nil
}

// DeleteBySource removes sightings confirmed by the given record.
func (r *ObjectRepository) DeleteBySource(ctx context.Context, sourceRecordID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM object_sightings WHERE source_record_id = $1`, sourceRecordID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete sightings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	return int(n), nil
}

var _ storage.ObjectMemoryRepository = (*ObjectRepository)(nil)
