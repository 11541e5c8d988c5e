package engine

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

// contextKey is an unexported type for context keys owned by this package.
type contextKey string

const traceKey contextKey = "retrieval_trace"

// TraceCollector accumulates TraceEvents for a single search operation.
type TraceCollector struct {
	mu        sync.Mutex
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.events = append(tc.events, e)
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]TraceEvent(nil), tc.events...)
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits an event only when a collector is present in the context.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}

// DebugRetrievalResult summarizes how a search reached its answer.
type DebugRetrievalResult struct {
	Query    string `json:"query"`
	Intent   string `json:"intent,omitempty"`
	Object   string `json:"object,omitempty"`
	TimeBias string `json:"time_bias,omitempty"`

	// Path is the evidence path that produced the answer.
	Path string `json:"path"`

	// Confidence is the final confidence label.
	Confidence string `json:"confidence"`

	// CandidatesFound counts candidates across every step that ran.
	CandidatesFound int `json:"candidates_found"`

	// ScoredResults contains every candidate that received a score.
	ScoredResults []ScoredEntry `json:"scored_results"`

	// FilteredOut contains every candidate that was discarded and why.
	FilteredOut []FilteredEntry `json:"filtered_out"`

	// Returned lists the ranked record IDs.
	Returned []string `json:"returned"`

	// TimingMS is the total search duration in milliseconds.
	TimingMS int64 `json:"timing_ms"`
}

// ScoredEntry is a candidate that received a score on some evidence path.
type ScoredEntry struct {
	MediaID string  `json:"media_id"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// FilteredEntry represents a candidate that was discarded.
type FilteredEntry struct {
	MediaID string `json:"media_id"`
	Reason  string `json:"reason"`
}

// BuildDebugResult converts collected trace events into a DebugRetrievalResult.
func BuildDebugResult(events []TraceEvent, elapsedMS int64) *DebugRetrievalResult {
	result := &DebugRetrievalResult{TimingMS: elapsedMS}

	for _, e := range events {
		switch e.Kind {
		case KindSearchStarted:
			result.Query = e.Query
		case KindIntentParsed:
			result.Intent = e.Intent
			result.Object = e.Object
			result.TimeBias = e.TimeBias
		case KindCandidatesFound:
			result.CandidatesFound += e.Count
		case KindScoredCandidate:
			result.ScoredResults = append(result.ScoredResults, ScoredEntry{
				MediaID: e.MediaID,
				Source:  e.Source,
				Score:   e.Score,
			})
		case KindFilteredOut:
			result.FilteredOut = append(result.FilteredOut, FilteredEntry{
				MediaID: e.MediaID,
				Reason:  e.FilterReason,
			})
		case KindResultsReturned:
			result.Path = e.Source
			result.Confidence = e.Confidence
			result.Returned = e.MediaIDs
		}
	}

	// Guarantee non-nil slices for clean JSON output.
	if result.ScoredResults == nil {
		result.ScoredResults = []ScoredEntry{}
	}
	if result.FilteredOut == nil {
		result.FilteredOut = []FilteredEntry{}
	}
	if result.Returned == nil {
		result.Returned = []string{}
	}

	return result
}

// SearchWithTrace runs Search with a trace collector attached and returns the
// result together with the debug summary.
func (o *RetrievalOrchestrator) SearchWithTrace(ctx context.Context, query string) (*types.SearchResult, *DebugRetrievalResult) {
	tc := NewTraceCollector()
	result := o.Search(WithTraceCollector(ctx, tc), query)
	return result, BuildDebugResult(tc.Events(), tc.ElapsedMS())
}
