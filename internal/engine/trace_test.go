package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

// ---------------------------------------------------------------------------
// TraceEvent constructors
// ---------------------------------------------------------------------------

func TestEventSearchStarted(t *testing.T) {
	e := EventSearchStarted("where are my keys")

	if e.Kind != KindSearchStarted {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindSearchStarted)
	}
	if e.Query != "where are my keys" {
		t.Errorf("Query: got %q, want %q", e.Query, "where are my keys")
	}
	if e.At.IsZero() {
		t.Error("At should not be zero")
	}
}

func TestEventIntentParsed(t *testing.T) {
	e := EventIntentParsed(types.IntentObjectSearch, "keys", types.TimeBiasToday)
	if e.Kind != KindIntentParsed {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindIntentParsed)
	}
	if e.Intent != types.IntentObjectSearch || e.Object != "keys" || e.TimeBias != types.TimeBiasToday {
		t.Errorf("got intent=%q object=%q time_bias=%q", e.Intent, e.Object, e.TimeBias)
	}
}

func TestEventCandidatesFound(t *testing.T) {
	e := EventCandidatesFound(42, types.PathVector)
	if e.Kind != KindCandidatesFound {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindCandidatesFound)
	}
	if e.Count != 42 {
		t.Errorf("Count: got %d, want %d", e.Count, 42)
	}
	if e.Source != types.PathVector {
		t.Errorf("Source: got %q, want %q", e.Source, types.PathVector)
	}
}

func TestEventScoredCandidate(t *testing.T) {
	e := EventScoredCandidate("rec-1", types.PathObject, 0.82)

	if e.Kind != KindScoredCandidate {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindScoredCandidate)
	}
	if e.MediaID != "rec-1" {
		t.Errorf("MediaID: got %q", e.MediaID)
	}
	if e.Score != 0.82 {
		t.Errorf("Score: got %f, want %f", e.Score, 0.82)
	}
}

func TestEventFilteredOut(t *testing.T) {
	e := EventFilteredOut("rec-2", "effective confidence 0.290 below 0.30")
	if e.Kind != KindFilteredOut {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindFilteredOut)
	}
	if e.MediaID != "rec-2" {
		t.Errorf("MediaID: got %q", e.MediaID)
	}
	if e.FilterReason == "" {
		t.Error("FilterReason must not be empty")
	}
}

func TestEventResultsReturned(t *testing.T) {
	ids := []string{"rec-1", "rec-2"}
	e := EventResultsReturned(types.PathLexical, "Low", ids)
	if e.Kind != KindResultsReturned {
		t.Errorf("Kind: got %q, want %q", e.Kind, KindResultsReturned)
	}
	if e.Count != 2 {
		t.Errorf("Count: got %d, want %d", e.Count, 2)
	}
	if e.Source != types.PathLexical || e.Confidence != "Low" {
		t.Errorf("got source=%q confidence=%q", e.Source, e.Confidence)
	}
}

// ---------------------------------------------------------------------------
// TraceCollector
// ---------------------------------------------------------------------------

func TestTraceCollector_EmitAndRetrieve(t *testing.T) {
	tc := NewTraceCollector()
	if len(tc.Events()) != 0 {
		t.Fatal("new collector should have no events")
	}

	tc.Emit(EventSearchStarted("hello"))
	tc.Emit(EventCandidatesFound(5, types.PathLexical))

	events := tc.Events()
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindSearchStarted {
		t.Errorf("first event: got %q", events[0].Kind)
	}
	if events[1].Kind != KindCandidatesFound {
		t.Errorf("second event: got %q", events[1].Kind)
	}
}

func TestTraceCollector_ConcurrentEmit(t *testing.T) {
	tc := NewTraceCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc.Emit(EventCandidatesFound(1, types.PathVector))
		}()
	}
	wg.Wait()

	if got := len(tc.Events()); got != 50 {
		t.Errorf("expected 50 events, got %d", got)
	}
}

func TestTraceCollector_ElapsedMS(t *testing.T) {
	tc := NewTraceCollector()
	time.Sleep(5 * time.Millisecond)
	elapsed := tc.ElapsedMS()
	if elapsed < 1 {
		t.Errorf("ElapsedMS expected >= 1, got %d", elapsed)
	}
}

// ---------------------------------------------------------------------------
// Context round-trip
// ---------------------------------------------------------------------------

func TestWithTraceCollector_RoundTrip(t *testing.T) {
	tc := NewTraceCollector()
	ctx := WithTraceCollector(context.Background(), tc)

	got, ok := TraceCollectorFromContext(ctx)
	if !ok {
		t.Fatal("TraceCollectorFromContext returned false")
	}
	if got != tc {
		t.Error("retrieved collector is not the same instance")
	}
}

func TestTraceCollectorFromContext_Missing(t *testing.T) {
	_, ok := TraceCollectorFromContext(context.Background())
	if ok {
		t.Error("expected false for context without collector")
	}
}

func TestEmitToContext_NoCollector(t *testing.T) {
	// emitToContext must not panic when no collector is present.
	emitToContext(context.Background(), EventSearchStarted("test"))
}

func TestEmitToContext_WithCollector(t *testing.T) {
	tc := NewTraceCollector()
	ctx := WithTraceCollector(context.Background(), tc)
	emitToContext(ctx, EventSearchStarted("test"))

	if len(tc.Events()) != 1 {
		t.Errorf("expected 1 event, got %d", len(tc.Events()))
	}
}

// ---------------------------------------------------------------------------
// BuildDebugResult
// ---------------------------------------------------------------------------

func TestBuildDebugResult_Empty(t *testing.T) {
	result := BuildDebugResult(nil, 10)
	if result.TimingMS != 10 {
		t.Errorf("TimingMS: got %d", result.TimingMS)
	}
	if result.ScoredResults == nil {
		t.Error("ScoredResults must be non-nil slice")
	}
	if result.FilteredOut == nil {
		t.Error("FilteredOut must be non-nil slice")
	}
	if result.Returned == nil {
		t.Error("Returned must be non-nil slice")
	}
}

func TestBuildDebugResult_FullFlow(t *testing.T) {
	events := []TraceEvent{
		EventSearchStarted("where are my keys"),
		EventIntentParsed(types.IntentObjectSearch, "keys", types.TimeBiasNone),
		EventCandidatesFound(1, types.PathObject),
		EventScoredCandidate("rec-old", types.PathObject, 0.29),
		EventFilteredOut("rec-old", "effective confidence 0.290 below 0.30"),
		EventCandidatesFound(2, types.PathVector),
		EventScoredCandidate("rec-a", types.PathVector, 0.99),
		EventScoredCandidate("rec-b", types.PathVector, 0.45),
		EventResultsReturned(types.PathVector, "Medium", []string{"rec-a", "rec-b"}),
	}

	result := BuildDebugResult(events, 42)

	if result.TimingMS != 42 {
		t.Errorf("TimingMS: got %d", result.TimingMS)
	}
	if result.Query != "where are my keys" {
		t.Errorf("Query: got %q", result.Query)
	}
	if result.Intent != types.IntentObjectSearch || result.Object != "keys" {
		t.Errorf("Intent: got %q object %q", result.Intent, result.Object)
	}
	if result.CandidatesFound != 3 {
		t.Errorf("CandidatesFound: got %d, want %d", result.CandidatesFound, 3)
	}
	if len(result.ScoredResults) != 3 {
		t.Errorf("ScoredResults len: got %d, want %d", len(result.ScoredResults), 3)
	}
	if result.ScoredResults[1].MediaID != "rec-a" || result.ScoredResults[1].Source != types.PathVector {
		t.Errorf("second ScoredResult: got %+v", result.ScoredResults[1])
	}
	if len(result.FilteredOut) != 1 {
		t.Errorf("FilteredOut len: got %d, want %d", len(result.FilteredOut), 1)
	}
	if result.FilteredOut[0].MediaID != "rec-old" {
		t.Errorf("FilteredOut MediaID: got %q", result.FilteredOut[0].MediaID)
	}
	if result.Path != types.PathVector || result.Confidence != "Medium" {
		t.Errorf("Path: got %q confidence %q", result.Path, result.Confidence)
	}
	if len(result.Returned) != 2 {
		t.Errorf("Returned len: got %d, want %d", len(result.Returned), 2)
	}
}

func TestBuildDebugResult_MultipleCandidateFoundEvents(t *testing.T) {
	// Vector and lexical candidate counts accumulate.
	events := []TraceEvent{
		EventCandidatesFound(10, types.PathVector),
		EventCandidatesFound(5, types.PathLexical),
	}
	result := BuildDebugResult(events, 0)
	if result.CandidatesFound != 15 {
		t.Errorf("CandidatesFound: got %d, want %d", result.CandidatesFound, 15)
	}
}
