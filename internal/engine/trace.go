package engine

import "time"

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindSearchStarted is emitted at the beginning of a search.
	KindSearchStarted TraceEventKind = "search_started"

	// KindIntentParsed is emitted once the query has been classified.
	KindIntentParsed TraceEventKind = "intent_parsed"

	// KindCandidatesFound is emitted after each evidence step resolves its candidates.
	KindCandidatesFound TraceEventKind = "candidates_found"

	// KindScoredCandidate is emitted once per candidate that received a score.
	KindScoredCandidate TraceEventKind = "scored_candidate"

	// KindFilteredOut is emitted for every candidate that was discarded.
	KindFilteredOut TraceEventKind = "filtered_out"

	// KindResultsReturned is emitted with the final ranked set.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during a search.
type TraceEvent struct {
	// Kind identifies the event type.
	Kind TraceEventKind `json:"kind"`

	// At is the wall-clock time the event was recorded.
	At time.Time `json:"at"`

	// MediaID is populated for per-record events (scored_candidate, filtered_out).
	MediaID string `json:"media_id,omitempty"`

	// Source is the evidence path ("remote", "object", "vector", "lexical").
	Source string `json:"source,omitempty"`

	// Count is used by candidates_found and results_returned.
	Count int `json:"count,omitempty"`

	// Score is the similarity, lexical score or effective confidence of a candidate.
	Score float64 `json:"score,omitempty"`

	// FilterReason is a human-readable explanation for filtered_out events.
	FilterReason string `json:"filter_reason,omitempty"`

	// Query is the original search query, populated in search_started.
	Query string `json:"query,omitempty"`

	// Intent is the parsed intent, populated in intent_parsed.
	Intent string `json:"intent,omitempty"`

	// Object is the extracted object label for object_search intents.
	Object string `json:"object,omitempty"`

	// TimeBias is the parsed time bias, populated in intent_parsed.
	TimeBias string `json:"time_bias,omitempty"`

	// Confidence is the final label, populated in results_returned.
	Confidence string `json:"confidence,omitempty"`

	// MediaIDs lists all returned IDs for results_returned events.
	MediaIDs []string `json:"media_ids,omitempty"`
}

// newTraceEvent is a convenience constructor that timestamps the event.
func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now()}
}

// EventSearchStarted creates a search_started trace event.
func EventSearchStarted(query string) TraceEvent {
	e := newTraceEvent(KindSearchStarted)
	e.Query = query
	return e
}

// EventIntentParsed creates an intent_parsed trace event.
func EventIntentParsed(intent, object, timeBias string) TraceEvent {
	e := newTraceEvent(KindIntentParsed)
	e.Intent = intent
	e.Object = object
	e.TimeBias = timeBias
	return e
}

// EventCandidatesFound creates a candidates_found trace event.
func EventCandidatesFound(count int, source string) TraceEvent {
	e := newTraceEvent(KindCandidatesFound)
	e.Count = count
	e.Source = source
	return e
}

// EventScoredCandidate creates a scored_candidate trace event.
func EventScoredCandidate(mediaID, source string, score float64) TraceEvent {
	e := newTraceEvent(KindScoredCandidate)
	e.MediaID = mediaID
	e.Source = source
	e.Score = score
	return e
}

// EventFilteredOut creates a filtered_out trace event.
func EventFilteredOut(mediaID, reason string) TraceEvent {
	e := newTraceEvent(KindFilteredOut)
	e.MediaID = mediaID
	e.FilterReason = reason
	return e
}

// EventResultsReturned creates a results_returned trace event.
func EventResultsReturned(source, confidence string, mediaIDs []string) TraceEvent {
	e := newTraceEvent(KindResultsReturned)
	e.Source = source
	e.Confidence = confidence
	e.MediaIDs = mediaIDs
	e.Count = len(mediaIDs)
	return e
}
