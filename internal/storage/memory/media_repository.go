// Package memory provides in-process implementations of the storage
// repositories. They back tests and ephemeral deployments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// MediaRepository implements storage.MediaRepository with a guarded map.
type MediaRepository struct {
	mu      sync.RWMutex
	records map[string]types.MediaRecord
}

// NewMediaRepository creates an empty MediaRepository.
func NewMediaRepository() *MediaRepository {
	return &MediaRepository{records: make(map[string]types.MediaRecord)}
}

// Store creates or replaces a record.
func (r *MediaRepository) Store(ctx context.Context, record *types.MediaRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if err := record.ValidateSource(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.ID] = cloneRecord(*record)
	return nil
}

// Get retrieves a record by ID.
func (r *MediaRepository) Get(ctx context.Context, id string) (*types.MediaRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

// List returns records newest first.
func (r *MediaRepository) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.MediaRecord], error) {
	opts.Normalize()

	r.mu.RLock()
	matched := make([]types.MediaRecord, 0, len(r.records))
	for _, rec := range r.records {
		if opts.UserID != "" && rec.UserID != opts.UserID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, rec.Status) {
			continue
		}
		if opts.DescribedOnly && !rec.HasDescription() {
			continue
		}
		matched = append(matched, cloneRecord(rec))
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b types.MediaRecord) int {
		if c := b.CapturedAt.Compare(a.CapturedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	total := len(matched)
	start := opts.Offset()
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	return &storage.PaginatedResult[types.MediaRecord]{
		Items:    matched[start:end],
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  end < total,
	}, nil
}

// UpdateAnalysis overwrites the derived fields of a record.
func (r *MediaRepository) UpdateAnalysis(ctx context.Context, id string, update storage.AnalysisUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	update.Apply(&rec)
	r.records[id] = cloneRecord(rec)
	return nil
}

// UpdateStatus sets the processing status of a record.
func (r *MediaRepository) UpdateStatus(ctx context.Context, id string, status types.ProcessingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return storage.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	r.records[id] = rec
	return nil
}

// Delete removes a record.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func cloneRecord(rec types.MediaRecord) types.MediaRecord {
	rec.Content = slices.Clone(rec.Content)
	rec.Embedding = slices.Clone(rec.Embedding)
	rec.TranscriptSegments = slices.Clone(rec.TranscriptSegments)
	if rec.AnalyzedAt != nil {
		at := *rec.AnalyzedAt
		rec.AnalyzedAt = &at
	}
	return rec
}

var _ storage.MediaRepository = (*MediaRepository)(nil)
