package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ObjectRepository implements storage.ObjectMemoryRepository.
// A single mutex makes each compare-and-write atomic.
type ObjectRepository struct {
	mu        sync.Mutex
	sightings map[string]types.ObjectSighting
}

// NewObjectRepository creates an empty ObjectRepository.
func NewObjectRepository() *ObjectRepository {
	return &ObjectRepository{sightings: make(map[string]types.ObjectSighting)}
}

// Upsert applies last-confirmed-wins; equal timestamps let the later write win.
func (r *ObjectRepository) Upsert(ctx context.Context, sighting types.ObjectSighting) (bool, error) {
	sighting.Label = types.NormalizeLabel(sighting.Label)
	if sighting.Label == "" {
		return false, fmt.Errorf("%w: label is required", storage.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sightings[sighting.Label]; ok && existing.ConfirmedAt.After(sighting.ConfirmedAt) {
		return false, nil
	}
	r.sightings[sighting.Label] = sighting
	return true, nil
}

// Get retrieves the live sighting for a label.
func (r *ObjectRepository) Get(ctx context.Context, label string) (*types.ObjectSighting, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sightings[types.NormalizeLabel(label)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

// DeleteBySource removes sightings confirmed by the given record.
func (r *ObjectRepository) DeleteBySource(ctx context.Context, sourceRecordID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for label, s := range r.sightings {
		if s.SourceRecordID == sourceRecordID {
			delete(r.sightings, label)
			n++
		}
	}
	return n, nil
}

var _ storage.ObjectMemoryRepository = (*ObjectRepository)(nil)
