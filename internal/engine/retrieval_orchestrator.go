package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// NoEvidenceAnswer is returned when no evidence path produced a record.
const NoEvidenceAnswer = "I have no confirmed record of that in your captured media."

const (
	// lexicalPageSize is the page size used when scanning records for the lexical fallback.
	lexicalPageSize = 500

	// excerptLen bounds descriptions quoted in proofs and fallback answers.
	excerptLen = 240

	// recentWindow is how far back the "recent" time bias reaches.
	recentWindow = 72 * time.Hour

	answerTimeLayout = "Mon Jan 2 2006 at 15:04"
)

// genericAnswerMarkers identify remote answers that carry no actual finding.
var genericAnswerMarkers = []string{
	"no confirmed record",
	"i don't have",
	"i do not have",
	"couldn't find",
	"could not find",
	"no matching",
	"i don't know",
	"not sure",
}

// RemoteLookup delegates a question to a centralized strict lookup service.
type RemoteLookup interface {
	Lookup(ctx context.Context, question string) (*types.SearchResult, error)
}

// OrchestratorDeps are the collaborators of a RetrievalOrchestrator.
// Text, Embedder and Remote may be nil; the steps that need them are skipped.
type OrchestratorDeps struct {
	Media    storage.MediaRepository
	Objects  storage.ObjectMemoryRepository
	Vectors  storage.VectorMemoryRepository
	Text     llm.TextGenerator
	Embedder llm.EmbeddingGenerator
	Concepts *ConceptTable
	Remote   RemoteLookup
}

// RetrievalOrchestrator answers questions by walking the evidence hierarchy:
// remote strict lookup, object sighting, vector similarity, lexical fallback.
// The first step that produces evidence wins; later steps never run.
type RetrievalOrchestrator struct {
	media    storage.MediaRepository
	objects  storage.ObjectMemoryRepository
	vectors  storage.VectorMemoryRepository
	text     llm.TextGenerator
	embedder llm.EmbeddingGenerator
	concepts *ConceptTable
	remote   RemoteLookup

	decay            DecayPolicy
	topK             int
	minSimilarity    float64
	synthesisRecords int
	stepTimeout      time.Duration
	remoteTimeout    time.Duration
}

// NewRetrievalOrchestrator creates an orchestrator. A nil concept table uses the built-in one.
func NewRetrievalOrchestrator(deps OrchestratorDeps, cfg Config) *RetrievalOrchestrator {
	def := DefaultConfig()
	o := &RetrievalOrchestrator{
		media:            deps.Media,
		objects:          deps.Objects,
		vectors:          deps.Vectors,
		text:             deps.Text,
		embedder:         deps.Embedder,
		concepts:         deps.Concepts,
		remote:           deps.Remote,
		decay:            cfg.Decay,
		topK:             cfg.VectorTopK,
		minSimilarity:    cfg.MinSimilarity,
		synthesisRecords: cfg.SynthesisRecords,
		stepTimeout:      cfg.StepTimeout,
		remoteTimeout:    cfg.RemoteTimeout,
	}
	if o.concepts == nil {
		o.concepts = DefaultConcepts()
	}
	if o.decay.HighThreshold == 0 {
		o.decay = def.Decay
	}
	if o.topK < 1 {
		o.topK = def.VectorTopK
	}
	if o.synthesisRecords < 1 {
		o.synthesisRecords = def.SynthesisRecords
	}
	if o.stepTimeout <= 0 {
		o.stepTimeout = def.StepTimeout
	}
	if o.remoteTimeout <= 0 {
		o.remoteTimeout = def.RemoteTimeout
	}
	return o
}

// candidate is a record surfaced by the vector or lexical step.
type candidate struct {
	record types.MediaRecord
	score  float64
	proof  types.Proof
}

// Search answers a free-text question. It never returns an error: failed or
// timed-out steps count as "no evidence" and the walk continues. When no step
// produces evidence the result is labelled None with an empty record list.
func (o *RetrievalOrchestrator) Search(ctx context.Context, query string) (result *types.SearchResult) {
	query = strings.TrimSpace(query)
	expanded := o.concepts.Expand(query)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Orchestrator: ERROR - recovered from panic while answering %q: %v", query, r)
			result = noEvidence(query, expanded)
		}
	}()

	ctx, span := tracer.Start(ctx, "orchestrator.search")
	defer span.End()
	emitToContext(ctx, EventSearchStarted(query))

	result = o.search(ctx, query, expanded)
	result.Query = query
	result.ExpandedTerms = expanded

	span.SetAttributes(
		attribute.String("search.path", result.Path),
		attribute.String("search.confidence", string(result.ConfidenceLabel)),
		attribute.Int("search.records", len(result.Records)),
	)
	emitToContext(ctx, EventResultsReturned(result.Path, string(result.ConfidenceLabel), recordIDs(result.Records)))
	return result
}

func (o *RetrievalOrchestrator) search(ctx context.Context, query string, expanded []string) *types.SearchResult {
	if query == "" {
		return noEvidence(query, expanded)
	}

	if res := o.remoteLookup(ctx, query); res != nil {
		return res
	}

	intent := o.parseIntent(ctx, query)
	emitToContext(ctx, EventIntentParsed(intent.Intent, intent.Object, intent.TimeBias))

	if intent.Intent == types.IntentObjectSearch {
		if res := o.objectLookup(ctx, query, intent.Object); res != nil {
			return res
		}
	}

	path := types.PathVector
	candidates := o.vectorSearch(ctx, query)
	if len(candidates) == 0 {
		path = types.PathLexical
		candidates = o.lexicalSearch(ctx, expanded)
	}
	candidates = o.applyTimeBias(ctx, candidates, intent.TimeBias)

	if len(candidates) == 0 {
		log.Printf("Orchestrator: No evidence for %q", query)
		return noEvidence(query, expanded)
	}
	return o.synthesize(ctx, query, path, candidates)
}

func (o *RetrievalOrchestrator) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.stepTimeout)
}

// remoteLookup returns a conclusive remote answer or nil.
func (o *RetrievalOrchestrator) remoteLookup(ctx context.Context, query string) *types.SearchResult {
	if o.remote == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "orchestrator.remote_lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("timeout_ms", o.remoteTimeout.Milliseconds())))
	defer span.End()

	stepCtx, cancel := context.WithTimeout(ctx, o.remoteTimeout)
	defer cancel()

	res, err := o.remote.Lookup(stepCtx, query)
	if err != nil {
		log.Printf("Orchestrator: Remote lookup failed, continuing locally: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote lookup failed")
		return nil
	}
	if res == nil || !res.HasProof() || isGenericAnswer(res.Answer) {
		emitToContext(ctx, EventCandidatesFound(0, types.PathRemote))
		return nil
	}

	res.Path = types.PathRemote
	if res.ConfidenceLabel == "" {
		res.ConfidenceLabel = types.ConfidenceMedium
	}
	emitToContext(ctx, EventCandidatesFound(len(res.Records), types.PathRemote))
	return res
}

func isGenericAnswer(answer string) bool {
	lower := strings.ToLower(strings.TrimSpace(answer))
	if lower == "" {
		return true
	}
	for _, marker := range genericAnswerMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseIntent classifies the query. Any failure degrades to general_search.
func (o *RetrievalOrchestrator) parseIntent(ctx context.Context, query string) *types.IntentResult {
	general := &types.IntentResult{Intent: types.IntentGeneralSearch, TimeBias: types.TimeBiasNone}
	if o.text == nil {
		return general
	}
	ctx, span := tracer.Start(ctx, "orchestrator.parse_intent")
	defer span.End()

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()

	raw, err := o.text.Complete(stepCtx, llm.IntentPrompt(query))
	if err != nil {
		log.Printf("Orchestrator: Intent parsing failed, treating as general search: %v", err)
		span.RecordError(err)
		return general
	}
	intent, err := llm.ParseIntentResponse(raw)
	if err != nil {
		log.Printf("Orchestrator: Malformed intent response, treating as general search: %v", err)
		return general
	}
	span.SetAttributes(attribute.String("intent", intent.Intent), attribute.String("intent.object", intent.Object))
	return intent
}

// objectLookup answers from the object sighting cache, or returns nil on a miss.
func (o *RetrievalOrchestrator) objectLookup(ctx context.Context, query, label string) *types.SearchResult {
	if o.objects == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "orchestrator.object_lookup")
	defer span.End()
	span.SetAttributes(attribute.String("object.label", label))

	sighting := o.findSighting(ctx, label)
	if sighting == nil {
		emitToContext(ctx, EventCandidatesFound(0, types.PathObject))
		return nil
	}
	emitToContext(ctx, EventCandidatesFound(1, types.PathObject))

	effective := o.decay.Effective(*sighting)
	emitToContext(ctx, EventScoredCandidate(sighting.SourceRecordID, types.PathObject, effective))
	span.SetAttributes(attribute.Float64("object.effective_confidence", effective))

	if o.decay.IsStale(effective) {
		log.Printf("Orchestrator: Sighting of %q is stale (%.3f < %.2f), falling through", sighting.Label, effective, o.decay.StaleThreshold)
		emitToContext(ctx, EventFilteredOut(sighting.SourceRecordID,
			fmt.Sprintf("effective confidence %.3f below %.2f", effective, o.decay.StaleThreshold)))
		return nil
	}

	rec, err := o.media.Get(ctx, sighting.SourceRecordID)
	if err != nil {
		log.Printf("Orchestrator: Source record %s of %q unavailable: %v", sighting.SourceRecordID, sighting.Label, err)
		emitToContext(ctx, EventFilteredOut(sighting.SourceRecordID, "source record unavailable"))
		return nil
	}

	confidence := o.decay.Label(effective)
	confirmedAt := sighting.ConfirmedAt
	answer := formatAnswer(llm.AnswerSections{
		DirectAnswer: fmt.Sprintf("Your %s: last seen %s.", sighting.Label, describeWhen(confirmedAt, o.decay.now())),
		Evidence: fmt.Sprintf("Confirmed (%s) in the %s captured %s (record %s).",
			sighting.ConfirmationType, rec.Modality, confirmedAt.Format(answerTimeLayout), rec.ID),
		Context:    excerpt(evidenceText(rec)),
		Confidence: confidence,
	})

	return &types.SearchResult{
		Query:           query,
		Records:         []types.MediaRecord{*rec},
		Answer:          answer,
		ConfidenceLabel: confidence,
		Path:            types.PathObject,
		Proof: []types.Proof{{
			Type:    sightingProofType(sighting.ConfirmationType),
			MediaID: rec.ID,
			Detail: fmt.Sprintf("%s confirmed (%s) at %s",
				sighting.Label, sighting.ConfirmationType, confirmedAt.Format(time.RFC3339)),
			Confidence: effective,
			Timestamp:  &confirmedAt,
		}},
	}
}

// findSighting looks up the label and its simple plural/singular variant,
// preferring the most recent confirmation.
func (o *RetrievalOrchestrator) findSighting(ctx context.Context, label string) *types.ObjectSighting {
	var best *types.ObjectSighting
	for _, l := range labelVariants(label) {
		s, err := o.objects.Get(ctx, l)
		if err != nil {
			continue
		}
		if best == nil || s.ConfirmedAt.After(best.ConfirmedAt) {
			best = s
		}
	}
	return best
}

func labelVariants(label string) []string {
	label = types.NormalizeLabel(label)
	if label == "" {
		return nil
	}
	if strings.HasSuffix(label, "s") && len(label) > 3 {
		return []string{label, strings.TrimSuffix(label, "s")}
	}
	return []string{label, label + "s"}
}

// vectorSearch embeds the query and resolves the nearest described records.
func (o *RetrievalOrchestrator) vectorSearch(ctx context.Context, query string) []candidate {
	if o.embedder == nil || o.vectors == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "orchestrator.vector_search")
	defer span.End()

	stepCtx, cancel := o.stepContext(ctx)
	vec, err := o.embedder.Embed(stepCtx, query)
	cancel()
	if err != nil {
		log.Printf("Orchestrator: Query embedding unavailable, using lexical fallback: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil
	}

	stepCtx, cancel = o.stepContext(ctx)
	matches, err := o.vectors.TopK(stepCtx, vec, o.topK, o.minSimilarity)
	cancel()
	if err != nil {
		log.Printf("Orchestrator: Vector search failed: %v", err)
		span.RecordError(err)
		return nil
	}
	emitToContext(ctx, EventCandidatesFound(len(matches), types.PathVector))

	out := make([]candidate, 0, len(matches))
	for _, m := range matches {
		rec, err := o.media.Get(ctx, m.Record.SourceRecordID)
		if err != nil {
			emitToContext(ctx, EventFilteredOut(m.Record.SourceRecordID, "source record not found"))
			continue
		}
		emitToContext(ctx, EventScoredCandidate(rec.ID, types.PathVector, m.Similarity))
		captured := rec.CapturedAt
		out = append(out, candidate{
			record: *rec,
			score:  m.Similarity,
			proof: types.Proof{
				Type:       proofType(rec.Modality),
				MediaID:    rec.ID,
				Detail:     excerpt(evidenceText(rec)),
				Confidence: m.Similarity,
				Timestamp:  &captured,
			},
		})
	}
	span.SetAttributes(attribute.Int("vector.records", len(out)))
	return out
}

// lexicalSearch scores every stored record against the expanded terms.
func (o *RetrievalOrchestrator) lexicalSearch(ctx context.Context, terms []string) []candidate {
	ctx, span := tracer.Start(ctx, "orchestrator.lexical_search")
	defer span.End()

	records, err := o.listAll(ctx)
	if err != nil {
		log.Printf("Orchestrator: Lexical fallback could not list records: %v", err)
		span.RecordError(err)
		if len(records) == 0 {
			return nil
		}
	}

	ranked := RankLexical(records, terms)
	emitToContext(ctx, EventCandidatesFound(len(ranked), types.PathLexical))

	out := make([]candidate, 0, len(ranked))
	for _, m := range ranked {
		emitToContext(ctx, EventScoredCandidate(m.Record.ID, types.PathLexical, float64(m.Score)))
		captured := m.Record.CapturedAt
		out = append(out, candidate{
			record: m.Record,
			score:  float64(m.Score),
			proof: types.Proof{
				Type:      proofType(m.Record.Modality),
				MediaID:   m.Record.ID,
				Detail:    "matched: " + strings.Join(m.Matches, ", "),
				Timestamp: &captured,
			},
		})
	}
	span.SetAttributes(attribute.Int("lexical.scanned", len(records)), attribute.Int("lexical.records", len(out)))
	return out
}

// listAll pages through every stored record. On error it returns what it read so far.
func (o *RetrievalOrchestrator) listAll(ctx context.Context) ([]types.MediaRecord, error) {
	var all []types.MediaRecord
	opts := storage.ListOptions{Page: 1, Limit: lexicalPageSize}
	for {
		page, err := o.media.List(ctx, opts)
		if err != nil {
			return all, err
		}
		all = append(all, page.Items...)
		if !page.HasMore || len(page.Items) == 0 {
			return all, nil
		}
		opts.Page++
	}
}

// applyTimeBias keeps candidates captured inside the window named by bias.
// When nothing survives the original candidates are returned unchanged.
func (o *RetrievalOrchestrator) applyTimeBias(ctx context.Context, cands []candidate, bias string) []candidate {
	from, to, ok := timeWindow(bias, o.decay.now())
	if !ok || len(cands) == 0 {
		return cands
	}

	var kept, dropped []candidate
	for _, c := range cands {
		at := c.record.CapturedAt
		if !at.Before(from) && (to.IsZero() || at.Before(to)) {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	if len(kept) == 0 {
		log.Printf("Orchestrator: No candidates captured %s, ignoring the time bias", bias)
		return cands
	}
	for _, c := range dropped {
		emitToContext(ctx, EventFilteredOut(c.record.ID, "captured outside the "+bias+" window"))
	}
	return kept
}

// timeWindow returns [from, to) for a time bias. A zero to is unbounded.
func timeWindow(bias string, now time.Time) (from, to time.Time, ok bool) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch bias {
	case types.TimeBiasToday:
		return startOfDay, time.Time{}, true
	case types.TimeBiasYesterday:
		return startOfDay.AddDate(0, 0, -1), startOfDay, true
	case types.TimeBiasWeek:
		return now.AddDate(0, 0, -7), time.Time{}, true
	case types.TimeBiasRecent:
		return now.Add(-recentWindow), time.Time{}, true
	}
	return time.Time{}, time.Time{}, false
}

// synthesize asks the text model for a four-section answer over the top
// candidates. A failed call or a reply that breaks the section format is
// replaced by an answer assembled from the evidence itself.
func (o *RetrievalOrchestrator) synthesize(ctx context.Context, query, path string, cands []candidate) *types.SearchResult {
	fallback := types.ConfidenceMedium
	if path == types.PathLexical {
		fallback = types.ConfidenceLow
	}

	top := cands
	if len(top) > o.synthesisRecords {
		top = top[:o.synthesisRecords]
	}

	result := &types.SearchResult{
		Query:   query,
		Records: make([]types.MediaRecord, len(cands)),
		Path:    path,
		Proof:   make([]types.Proof, len(top)),
	}
	for i, c := range cands {
		result.Records[i] = c.record
	}
	evidence := make([]string, len(top))
	for i, c := range top {
		result.Proof[i] = c.proof
		evidence[i] = llm.FormatEvidence(string(c.record.Modality), evidenceText(&c.record))
	}

	if text, ok := o.synthesisText(ctx, query, evidence); ok {
		sections, _ := llm.ParseAnswerSections(text)
		result.Answer = text
		result.ConfidenceLabel = sections.Confidence
		if result.ConfidenceLabel == "" {
			result.ConfidenceLabel = fallback
		}
		return result
	}

	result.Answer = evidenceAnswer(top, evidence, fallback)
	result.ConfidenceLabel = fallback
	return result
}

// synthesisText returns the model's answer when it honours the section format.
func (o *RetrievalOrchestrator) synthesisText(ctx context.Context, query string, evidence []string) (string, bool) {
	if o.text == nil {
		return "", false
	}
	ctx, span := tracer.Start(ctx, "orchestrator.synthesize")
	defer span.End()

	stepCtx, cancel := o.stepContext(ctx)
	defer cancel()

	text, err := o.text.Complete(stepCtx, llm.SynthesisPrompt(query, evidence))
	if err != nil {
		log.Printf("Orchestrator: Answer synthesis failed, answering from evidence: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		return "", false
	}
	text = strings.TrimSpace(text)
	if _, ok := llm.ParseAnswerSections(text); !ok {
		log.Printf("Orchestrator: WARNING - Synthesized answer is missing one of its four sections, answering from evidence")
		span.SetStatus(codes.Error, "format contract violated")
		return "", false
	}
	return text, true
}

func noEvidence(query string, expanded []string) *types.SearchResult {
	return &types.SearchResult{
		Query:           query,
		ExpandedTerms:   expanded,
		Records:         []types.MediaRecord{},
		Answer:          NoEvidenceAnswer,
		ConfidenceLabel: types.ConfidenceNone,
		Path:            types.PathNoEvidence,
	}
}

// evidenceAnswer assembles the four sections from the ranked evidence.
func evidenceAnswer(top []candidate, evidence []string, label types.ConfidenceLabel) string {
	best := top[0].record
	return formatAnswer(llm.AnswerSections{
		DirectAnswer: fmt.Sprintf("The closest match is a %s captured %s: %s",
			best.Modality, best.CapturedAt.Format(answerTimeLayout), excerpt(evidenceText(&best))),
		Evidence:   strings.Join(evidence, "\n"),
		Context:    fmt.Sprintf("%d matching record(s), ranked by relevance.", len(top)),
		Confidence: label,
	})
}

func formatAnswer(s llm.AnswerSections) string {
	return fmt.Sprintf("Direct Answer: %s\nEvidence: %s\nContext: %s\nConfidence: %s",
		s.DirectAnswer, s.Evidence, s.Context, s.Confidence)
}

// describeWhen renders a confirmation time relative to now.
func describeWhen(at, now time.Time) string {
	at = at.In(now.Location())
	sameDay := func(a, b time.Time) bool {
		return a.Year() == b.Year() && a.YearDay() == b.YearDay()
	}
	switch {
	case sameDay(at, now):
		return "today at " + at.Format("15:04")
	case sameDay(at, now.AddDate(0, 0, -1)):
		return "yesterday at " + at.Format("15:04")
	}
	return "on " + at.Format(answerTimeLayout)
}

func evidenceText(rec *types.MediaRecord) string {
	if rec.Description != "" {
		return rec.Description
	}
	return rec.Transcript
}

func proofType(m types.Modality) string {
	if m == types.ModalityAudio {
		return types.ProofAudio
	}
	return types.ProofVisual
}

// sightingProofType folds inferred sightings into visual; only a spoken
// confirmation is audio proof.
func sightingProofType(c types.ConfirmationType) string {
	if c == types.ConfirmedAudio {
		return types.ProofAudio
	}
	return types.ProofVisual
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return strings.TrimSpace(string(r[:excerptLen])) + "..."
}

func recordIDs(records []types.MediaRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
