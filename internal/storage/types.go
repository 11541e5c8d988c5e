package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for media listings.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 500).
	Limit int

	// UserID restricts results to one owner. Empty means all owners.
	UserID string

	// Statuses restricts results to records in any of the given statuses.
	Statuses []types.ProcessingStatus

	// DescribedOnly restricts results to records with a non-empty description.
	DescribedOnly bool
}

// Normalize applies defaults and bounds to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}

// Offset returns the row offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// AnalysisUpdate carries the derived fields written by one analysis pass.
// Every field overwrites the stored value, including empty ones.
type AnalysisUpdate struct {
	Description        string
	Transcript         string
	TranscriptSegments []types.TranscriptSegment
	Embedding          []float32
	ObjectCount        int
	Status             types.ProcessingStatus
	AnalysisError      string
	AnalyzedAt         time.Time
}

// Apply copies the update onto a record.
func (u AnalysisUpdate) Apply(r *types.MediaRecord) {
	r.Description = u.Description
	r.Transcript = u.Transcript
	r.TranscriptSegments = u.TranscriptSegments
	r.Embedding = u.Embedding
	r.ObjectCount = u.ObjectCount
	r.Status = u.Status
	r.AnalysisError = u.AnalysisError
	at := u.AnalyzedAt
	r.AnalyzedAt = &at
	r.UpdatedAt = u.AnalyzedAt
}
