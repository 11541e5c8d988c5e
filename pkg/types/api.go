package types

import "time"

// Request and response bodies of the HTTP API. Requests carry validator tags.

// UploadRequest is the JSON form of POST /api/media.
type UploadRequest struct {
	UserID     string     `json:"user_id" validate:"required,max=128"`
	MediaType  string     `json:"media_type" validate:"required"`
	FileURL    string     `json:"file_url" validate:"required,max=2048"`
	FileName   string     `json:"file_name,omitempty" validate:"max=255"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// UploadResponse acknowledges a stored record.
type UploadResponse struct {
	MediaID string           `json:"media_id"`
	Status  ProcessingStatus `json:"status"`
}

// MediaStatusResponse reports analysis progress of one record.
type MediaStatusResponse struct {
	MediaID         string           `json:"media_id"`
	Status          ProcessingStatus `json:"status"`
	MediaType       Modality         `json:"media_type"`
	TranscriptCount int              `json:"transcript_count"`
	TagCount        int              `json:"tag_count"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query  string `json:"query" validate:"required,max=1000"`
	UserID string `json:"user_id" validate:"required,max=128"`
}

// SearchMedia is one ranked record in a SearchResponse.
type SearchMedia struct {
	MediaID   string    `json:"media_id"`
	MediaType Modality  `json:"media_type"`
	FilePath  string    `json:"file_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Matches   []string  `json:"matches"`
}

// SearchResponse lists ranked records without an answer.
type SearchResponse struct {
	Query         string        `json:"query"`
	ExpandedTerms []string      `json:"expanded_terms"`
	Media         []SearchMedia `json:"media"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question string `json:"question" validate:"required,max=1000"`
	UserID   string `json:"user_id" validate:"required,max=128"`
}

// ChatResponse is a synthesized answer with its evidence.
type ChatResponse struct {
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	Confidence ConfidenceLabel `json:"confidence,omitempty"`
	HasProof   bool            `json:"has_proof"`
	Proof      []Proof         `json:"proof"`
}

// ReanalyzeRequest is the body of POST /api/reanalyze.
type ReanalyzeRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// ReanalyzeResponse reports how many records ended with a description.
type ReanalyzeResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// StatusEvent is pushed to websocket clients on every status change.
type StatusEvent struct {
	Type    string           `json:"type"`
	MediaID string           `json:"media_id"`
	Status  ProcessingStatus `json:"status"`
}

// StatusEventType is the Type of every StatusEvent.
const StatusEventType = "media_status"
