package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// VectorRepository implements storage.VectorMemoryRepository on SQLite.
// Similarity is computed in Go over a full scan of same-dimension rows.
type VectorRepository struct {
	db *sql.DB
}

// NewVectorRepository creates a vector repository on an open connection.
func NewVectorRepository(db *sql.DB) *VectorRepository {
	return &VectorRepository{db: db}
}

// Append stores a vector record, replacing the slot for its source.
func (r *VectorRepository) Append(ctx context.Context, record types.VectorRecord) error {
	if record.SourceRecordID == "" {
		return fmt.Errorf("%w: source record ID is required", storage.ErrInvalidInput)
	}
	if len(record.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vector_records (source_record_id, user_id, embedding, dimension, span_start, span_end, modality)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_record_id) DO UPDATE SET
			user_id = excluded.user_id,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			span_start = excluded.span_start,
			span_end = excluded.span_end,
			modality = excluded.modality
	`,
		record.SourceRecordID,
		record.UserID,
		storage.EncodeVector(record.Embedding),
		len(record.Embedding),
		toUnix(record.TimeSpan.Start),
		toUnix(record.TimeSpan.End),
		string(record.Modality),
	)
	if err != nil {
		return fmt.Errorf("failed to store vector record: %w", err)
	}
	return nil
}

// TopK scans rows of the query's dimension and ranks them.
func (r *VectorRepository) TopK(ctx context.Context, query []float32, k int, minSimilarity float64) ([]types.ScoredVector, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT source_record_id, user_id, embedding, span_start, span_end, modality
		FROM vector_records WHERE dimension = ?
	`, len(query))
	if err != nil {
		return nil, fmt.Errorf("failed to scan vector records: %w", err)
	}
	defer rows.Close()

	var candidates []types.VectorRecord
	for rows.Next() {
		var rec types.VectorRecord
		var blob []byte
		var start, end int64
		var modality string
		if err := rows.Scan(&rec.SourceRecordID, &rec.UserID, &blob, &start, &end, &modality); err != nil {
			return nil, fmt.Errorf("failed to read vector record: %w", err)
		}
		vec, err := storage.DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		rec.Embedding = vec
		rec.TimeSpan = types.TimeSpan{Start: fromUnix(start), End: fromUnix(end)}
		rec.Modality = types.Modality(modality)
		candidates = append(candidates, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return storage.RankVectors(candidates, query, k, minSimilarity), nil
}

// Delete removes the vector record for a source.
func (r *VectorRepository) Delete(ctx context.Context, sourceRecordID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vector_records WHERE source_record_id = ?`, sourceRecordID); err != nil {
		return fmt.Errorf("failed to delete vector record: %w", err)
	}
	return nil
}

var _ storage.VectorMemoryRepository = (*VectorRepository)(nil)
