package types

import "time"

// Intent constants returned by query intent parsing
const (
	IntentObjectSearch  = "object_search"
	IntentGeneralSearch = "general_search"
)

// Time bias constants returned by query intent parsing
const (
	TimeBiasNone      = "none"
	TimeBiasRecent    = "recent"
	TimeBiasToday     = "today"
	TimeBiasYesterday = "yesterday"
	TimeBiasWeek      = "week"
)

// Evidence path constants recorded on a SearchResult
const (
	PathRemote     = "remote"
	PathObject     = "object"
	PathVector     = "vector"
	PathLexical    = "lexical"
	PathNoEvidence = "none"
)

// IntentResult is the structured interpretation of a free-text question.
type IntentResult struct {
	Intent   string `json:"intent"`
	Object   string `json:"object,omitempty"`
	TimeBias string `json:"time_bias,omitempty"`
}

// Proof types. Every proof is either seen or heard.
const (
	ProofVisual = "visual"
	ProofAudio  = "audio"
)

// Proof is one piece of evidence cited by an answer.
type Proof struct {
	Type       string     `json:"type"` // ProofVisual or ProofAudio
	MediaID    string     `json:"media_id"`
	Detail     string     `json:"detail"`
	Confidence float64    `json:"confidence,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// SearchResult is the outcome of one retrieval.
// Records are ranked; ExpandedTerms is always populated.
type SearchResult struct {
	Query           string          `json:"query"`
	ExpandedTerms   []string        `json:"expanded_terms"`
	Records         []MediaRecord   `json:"media"`
	Answer          string          `json:"answer"`
	ConfidenceLabel ConfidenceLabel `json:"confidence"`
	Path            string          `json:"path"`
	Proof           []Proof         `json:"proof,omitempty"`
}

// HasProof reports whether the result cites any evidence.
func (r *SearchResult) HasProof() bool {
	return len(r.Proof) > 0 || len(r.Records) > 0
}
