package types

import "time"

// TimeSpan is the capture interval a vector record covers.
// For photos Start and End are equal.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// VectorRecord is the embedding of one analyzed media record's description.
type VectorRecord struct {
	SourceRecordID string    `json:"source_record_id"`
	UserID         string    `json:"user_id,omitempty"`
	Embedding      []float32 `json:"embedding"`
	TimeSpan       TimeSpan  `json:"time_span"`
	Modality       Modality  `json:"modality"`
}

// ScoredVector pairs a vector record with its similarity to a query.
type ScoredVector struct {
	Record     VectorRecord `json:"record"`
	Similarity float64      `json:"similarity"`
}

// NewTimeSpan builds the span for a record captured at start lasting d.
func NewTimeSpan(start time.Time, d time.Duration) TimeSpan {
	return TimeSpan{Start: start, End: start.Add(d)}
}
