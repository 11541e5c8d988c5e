// Package storage provides composable storage interfaces for the recollect system.
//
// The storage layer is split into three small repositories (media records,
// object sightings and vector records) that can be implemented independently
// and composed per deployment: in-process maps, SQLite, PostgreSQL with pgvector,
// or chromem-go for the vector side.
package storage

import (
	"context"

	"github.com/scrypster/recollect/pkg/types"
)

// MediaRepository stores captured media records and their derived analysis fields.
type MediaRepository interface {
	// Store creates or replaces a media record (upsert semantics).
	// Returns ErrInvalidInput when the record has no ID or not exactly one content source.
	Store(ctx context.Context, record *types.MediaRecord) error

	// Get retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*types.MediaRecord, error)

	// List retrieves records newest first with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.MediaRecord], error)

	// UpdateAnalysis overwrites the derived fields of a record.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateAnalysis(ctx context.Context, id string, update AnalysisUpdate) error

	// UpdateStatus sets the processing status of a record.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateStatus(ctx context.Context, id string, status types.ProcessingStatus) error

	// Delete permanently removes a record.
	// Returns ErrNotFound if the record doesn't exist.
	Delete(ctx context.Context, id string) error
}

// ObjectMemoryRepository keeps the latest confirmed sighting per object label.
type ObjectMemoryRepository interface {
	// Upsert stores the sighting if no sighting exists for its label or the
	// stored one has ConfirmedAt <= the incoming ConfirmedAt. The comparison and
	// write are atomic per label. Returns whether the sighting was applied.
	Upsert(ctx context.Context, sighting types.ObjectSighting) (bool, error)

	// Get retrieves the live sighting for a label (normalized before lookup).
	// Returns ErrNotFound if no sighting exists.
	Get(ctx context.Context, label string) (*types.ObjectSighting, error)

	// DeleteBySource removes every sighting confirmed by the given record.
	DeleteBySource(ctx context.Context, sourceRecordID string) (int, error)
}

// VectorMemoryRepository holds one embedding per analyzed media record.
type VectorMemoryRepository interface {
	// Append stores a vector record, replacing any prior record for the same source.
	Append(ctx context.Context, record types.VectorRecord) error

	// TopK returns at most k records whose cosine similarity to query is at
	// least minSimilarity, ordered by similarity descending and then by newer
	// TimeSpan.Start. Records of a different dimension or with zero norm never match.
	TopK(ctx context.Context, query []float32, k int, minSimilarity float64) ([]types.ScoredVector, error)

	// Delete removes the vector record for a source, if any.
	Delete(ctx context.Context, sourceRecordID string) error
}

// Closer is implemented by backends holding external resources.
type Closer interface {
	Close() error
}
