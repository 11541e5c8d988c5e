package types

import (
	"errors"
	"time"
)

// ErrContentSource is returned when a record does not carry exactly one content source.
var ErrContentSource = errors.New("media record must have exactly one of content_url or content")

// MediaRecord is a single captured photo, video or audio clip.
// Derived fields (Description, Transcript, Embedding, ObjectCount) are
// overwritten by every analysis pass.
type MediaRecord struct {
	// Core identification fields
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Modality   Modality      `json:"media_type"`
	CapturedAt time.Time     `json:"created_at"`
	Duration   time.Duration `json:"duration,omitempty"` // audio/video only

	// Content source: exactly one of ContentURL or Content is set
	ContentURL string `json:"file_url,omitempty"`
	Content    []byte `json:"-"`
	FileName   string `json:"file_name,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`

	// Derived by analysis
	Description        string              `json:"description,omitempty"`
	Transcript         string              `json:"transcript,omitempty"`
	TranscriptSegments []TranscriptSegment `json:"transcript_segments,omitempty"`
	Embedding          []float32           `json:"embedding,omitempty"`
	ObjectCount        int                 `json:"tag_count"`

	// Processing metadata
	Status        ProcessingStatus `json:"status"`
	AnalysisError string           `json:"analysis_error,omitempty"`
	AnalyzedAt    *time.Time       `json:"analyzed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// TranscriptSegment is a timed piece of a transcript, offsets in seconds.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ValidateSource checks that exactly one content source is present.
func (r *MediaRecord) ValidateSource() error {
	hasURL := r.ContentURL != ""
	hasBytes := len(r.Content) > 0
	if hasURL == hasBytes {
		return ErrContentSource
	}
	return nil
}

// HasDescription reports whether analysis has produced a description.
func (r *MediaRecord) HasDescription() bool {
	return r.Description != ""
}
