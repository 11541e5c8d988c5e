package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// VectorRepository implements storage.VectorMemoryRepository with a full scan.
type VectorRepository struct {
	mu      sync.RWMutex
	order   []string
	records map[string]types.VectorRecord
}

// NewVectorRepository creates an empty VectorRepository.
func NewVectorRepository() *VectorRepository {
	return &VectorRepository{records: make(map[string]types.VectorRecord)}
}

// Append stores a record in the slot for its source.
func (r *VectorRepository) Append(ctx context.Context, record types.VectorRecord) error {
	if record.SourceRecordID == "" {
		return fmt.Errorf("%w: source record ID is required", storage.ErrInvalidInput)
	}
	record.Embedding = slices.Clone(record.Embedding)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.SourceRecordID]; !ok {
		r.order = append(r.order, record.SourceRecordID)
	}
	r.records[record.SourceRecordID] = record
	return nil
}

// TopK ranks every stored record against query.
func (r *VectorRepository) TopK(ctx context.Context, query []float32, k int, minSimilarity float64) ([]types.ScoredVector, error) {
	r.mu.RLock()
	candidates := make([]types.VectorRecord, 0, len(r.order))
	for _, id := range r.order {
		candidates = append(candidates, r.records[id])
	}
	r.mu.RUnlock()

	return storage.RankVectors(candidates, query, k, minSimilarity), nil
}

// Delete removes the record for a source.
func (r *VectorRepository) Delete(ctx context.Context, sourceRecordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[sourceRecordID]; !ok {
		return nil
	}
	delete(r.records, sourceRecordID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == sourceRecordID })
	return nil
}

// Len returns the number of stored vector records.
func (r *VectorRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ storage.VectorMemoryRepository = (*VectorRepository)(nil)
