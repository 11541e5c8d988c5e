package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// VectorRepository implements storage.VectorMemoryRepository on PostgreSQL.
// With pgvector the database preselects candidates by cosine distance;
// without it every same-dimension row is ranked in process.
type VectorRepository struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// NewVectorRepository creates a vector repository on an open pool.
// pgvectorAvailable indicates whether the embedding_vec column exists.
func NewVectorRepository(db *sql.DB, pgvectorAvailable bool) *VectorRepository {
	return &VectorRepository{db: db, pgvectorAvailable: pgvectorAvailable}
}

// Append stores a vector record, replacing the slot for its source.
// The BYTEA column is always written; embedding_vec only when pgvector is present.
func (r *VectorRepository) Append(ctx context.Context, record types.VectorRecord) error {
	if record.SourceRecordID == "" {
		return fmt.Errorf("%w: source record ID is required", storage.ErrInvalidInput)
	}
	if len(record.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	args := []interface{}{
		record.SourceRecordID,
		record.UserID,
		storage.EncodeVector(record.Embedding),
		len(record.Embedding),
		record.TimeSpan.Start,
		record.TimeSpan.End,
		string(record.Modality),
	}

	if r.pgvectorAvailable {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO vector_records (source_record_id, user_id, embedding, dimension, span_start, span_end, modality, embedding_vec)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT(source_record_id) DO UPDATE SET
				user_id = excluded.user_id,
				embedding = excluded.embedding,
				dimension = excluded.dimension,
				span_start = excluded.span_start,
				span_end = excluded.span_end,
				modality = excluded.modality,
				embedding_vec = excluded.embedding_vec
		`, append(args, pgvector.NewVector(record.Embedding))...)
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vector_records (source_record_id, user_id, embedding, dimension, span_start, span_end, modality)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(source_record_id) DO UPDATE SET
			user_id = excluded.user_id,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			span_start = excluded.span_start,
			span_end = excluded.span_end,
			modality = excluded.modality
	`, args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to store vector record: %w", err)
	}
	return nil
}

// TopK returns the best matches for query. Candidates are re-ranked in
// process so ties and thresholds behave the same on every backend.
func (r *VectorRepository) TopK(ctx context.Context, query []float32, k int, minSimilarity float64) ([]types.ScoredVector, error) {
	if k <= 0 || !storage.Comparable(query, query) {
		return nil, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if r.pgvectorAvailable {
		// The materialized CTE keeps <=> away from rows of another dimension;
		// vector_norm excludes zero vectors, whose cosine distance is NaN.
		rows, err = r.db.QueryContext(ctx, `
			WITH candidates AS MATERIALIZED (
				SELECT source_record_id, user_id, embedding, span_start, span_end, modality, embedding_vec
				FROM vector_records
				WHERE dimension = $2 AND embedding_vec IS NOT NULL
			)
			SELECT source_record_id, user_id, embedding, span_start, span_end, modality
			FROM candidates
			WHERE vector_norm(embedding_vec) > 0
			  AND 1 - (embedding_vec <=> $1) >= $3
			ORDER BY embedding_vec <=> $1 ASC, span_start DESC
			LIMIT $4
		`, pgvector.NewVector(query), len(query), minSimilarity, k)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT source_record_id, user_id, embedding, span_start, span_end, modality
			FROM vector_records WHERE dimension = $1
		`, len(query))
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query vector records: %w", err)
	}
	defer rows.Close()

	var candidates []types.VectorRecord
	for rows.Next() {
		var rec types.VectorRecord
		var blob []byte
		var start, end time.Time
		var modality string
		if err := rows.Scan(&rec.SourceRecordID, &rec.UserID, &blob, &start, &end, &modality); err != nil {
			return nil, fmt.Errorf("postgres: failed to read vector record: %w", err)
		}
		vec, err := storage.DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		rec.Embedding = vec
		rec.TimeSpan = types.TimeSpan{Start: start, End: end}
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
	if _, err := r.db.ExecContext(ctx, `DELETE FROM vector_records WHERE source_record_id = $1`, sourceRecordID); err != nil {
		return fmt.Errorf("postgres: failed to delete vector record: %w", err)
	}
	return nil
}

var _ storage.VectorMemoryRepository = (*VectorRepository)(nil)
