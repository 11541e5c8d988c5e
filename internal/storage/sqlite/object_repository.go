package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ObjectRepository implements storage.ObjectMemoryRepository on SQLite.
type ObjectRepository struct {
	db *sql.DB
}

// NewObjectRepository creates an object repository on an open connection.
func NewObjectRepository(db *sql.DB) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// Upsert applies last-confirmed-wins inside a single statement; the WHERE on
// the conflict branch makes the comparison and the write atomic.
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET
			source_record_id = excluded.source_record_id,
			confirmed_at = excluded.confirmed_at,
			base_confidence = excluded.base_confidence,
			confirmation_type = excluded.confirmation_type
		WHERE excluded.confirmed_at >= object_sightings.confirmed_at
	`, label, sighting.SourceRecordID, toUnix(sighting.ConfirmedAt), sighting.BaseConfidence, string(confirmation))
	if err != nil {
		return false, fmt.Errorf("failed to upsert sighting: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// Get retrieves the live sighting for a label.
func (r *ObjectRepository) Get(ctx context.Context, label string) (*types.ObjectSighting, error) {
	var s types.ObjectSighting
	var confirmedAt int64
	var confirmation string

	err := r.db.QueryRowContext(ctx, `
		SELECT label, source_record_id, confirmed_at, base_confidence, confirmation_type
		FROM object_sightings WHERE label = ?
	`, types.NormalizeLabel(label)).Scan(&s.Label, &s.SourceRecordID, &confirmedAt, &s.BaseConfidence, &confirmation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sighting: %w", err)
	}

	s.ConfirmedAt = fromUnix(confirmedAt)
	s.ConfirmationType = types.ConfirmationType(confirmation)
	return &s, nil
}

// DeleteBySource removes sightings confirmed by the given record.
func (r *ObjectRepository) DeleteBySource(ctx context.Context, sourceRecordID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM object_sightings WHERE source_record_id = ?`, sourceRecordID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sightings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(n), nil
}

var _ storage.ObjectMemoryRepository = (*ObjectRepository)(nil)
