// Package chromemdb implements storage.VectorMemoryRepository on chromem-go,
// an embedded vector database with optional on-disk persistence.
package chromemdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

const collectionPrefix = "vectors-"

// VectorRepository stores vector records in one chromem collection per
// embedding dimension, so a query never meets a vector of another length.
type VectorRepository struct {
	db *chromem.DB
	mu sync.Mutex // guards replace-on-append and count-then-query
}

// NewVectorRepository creates a repository. An empty path keeps everything
// in memory; otherwise documents are persisted under path.
func NewVectorRepository(path string) (*VectorRepository, error) {
	if path == "" {
		return &VectorRepository{db: chromem.NewDB()}, nil
	}

	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("chromem: failed to open %s: %w", path, err)
	}
	return &VectorRepository{db: db}, nil
}

// noEmbed is installed on every collection; records always carry embeddings.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: documents must be added with an embedding")
}

func collectionName(dim int) string {
	return collectionPrefix + strconv.Itoa(dim)
}

// Append stores a record, removing any prior record for the same source from
// every collection first. Zero vectors are dropped since they can never match.
func (r *VectorRepository) Append(ctx context.Context, record types.VectorRecord) error {
	if record.SourceRecordID == "" {
		return fmt.Errorf("%w: source record ID is required", storage.ErrInvalidInput)
	}
	if len(record.Embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.deleteLocked(ctx, record.SourceRecordID); err != nil {
		return err
	}
	if !storage.Comparable(record.Embedding, record.Embedding) {
		return nil
	}

	col, err := r.db.GetOrCreateCollection(collectionName(len(record.Embedding)), nil, noEmbed)
	if err != nil {
		return fmt.Errorf("chromem: failed to open collection: %w", err)
	}

	embedding := make([]float32, len(record.Embedding))
	copy(embedding, record.Embedding)

	err = col.AddDocument(ctx, chromem.Document{
		ID:        record.SourceRecordID,
		Embedding: embedding,
		Content:   string(record.Modality),
		Metadata: map[string]string{
			"user_id":    record.UserID,
			"modality":   string(record.Modality),
			"span_start": record.TimeSpan.Start.UTC().Format(time.RFC3339Nano),
			"span_end":   record.TimeSpan.End.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("chromem: failed to add document: %w", err)
	}
	return nil
}

// TopK queries the collection matching the query's dimension. chromem ranks
// by cosine over normalized vectors; results are re-ranked so ties and the
// threshold behave like the other backends.
func (r *VectorRepository) TopK(ctx context.Context, query []float32, k int, minSimilarity float64) ([]types.ScoredVector, error) {
	if k <= 0 || !storage.Comparable(query, query) {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	col := r.db.GetCollection(collectionName(len(query)), noEmbed)
	if col == nil {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query failed: %w", err)
	}

	candidates := make([]types.VectorRecord, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, types.VectorRecord{
			SourceRecordID: res.ID,
			UserID:         res.Metadata["user_id"],
			Embedding:      res.Embedding,
			Modality:       types.Modality(res.Metadata["modality"]),
			TimeSpan: types.TimeSpan{
				Start: parseTime(res.Metadata["span_start"]),
				End:   parseTime(res.Metadata["span_end"]),
			},
		})
	}

	return storage.RankVectors(candidates, query, k, minSimilarity), nil
}

// Delete removes the record for a source from every collection.
func (r *VectorRepository) Delete(ctx context.Context, sourceRecordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(ctx, sourceRecordID)
}

func (r *VectorRepository) deleteLocked(ctx context.Context, sourceRecordID string) error {
	for name, col := range r.db.ListCollections() {
		if !strings.HasPrefix(name, collectionPrefix) {
			continue
		}
		if err := col.Delete(ctx, nil, nil, sourceRecordID); err != nil {
			return fmt.Errorf("chromem: failed to delete %s from %s: %w", sourceRecordID, name, err)
		}
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ storage.VectorMemoryRepository = (*VectorRepository)(nil)
