package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/scrypster/recollect/internal/content"
	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

var tracer = otel.Tracer("recollect/engine")

// ContentLoader resolves the bytes of a media record. *content.Loader implements it.
type ContentLoader interface {
	Load(ctx context.Context, rec *types.MediaRecord) (*content.Blob, error)
}

// PipelineDeps are the collaborators of an AnalysisPipeline.
// Any model may be nil; the steps that need it are skipped.
type PipelineDeps struct {
	Media       storage.MediaRepository
	Objects     storage.ObjectMemoryRepository
	Vectors     storage.VectorMemoryRepository
	Loader      ContentLoader
	Vision      llm.VisionDescriber
	Transcriber llm.Transcriber
	Text        llm.TextGenerator
	Embedder    llm.EmbeddingGenerator
}

// AnalysisPipeline turns raw media into a description, an embedding and a set
// of object sightings.
//
// Steps run in order and each failure is logged and recorded, never fatal:
//   - photo: vision description
//   - audio: transcription, then keyword extraction over the transcript
//   - video: best-effort transcription of the audio track, then visual description
//   - any modality with a description: embedding, then object extraction
//
// The vector record and object sightings are written first, followed by the
// derived fields in a single UpdateAnalysis call. Running the pipeline twice
// on the same record yields the same stored state.
type AnalysisPipeline struct {
	media       storage.MediaRepository
	objects     storage.ObjectMemoryRepository
	vectors     storage.VectorMemoryRepository
	loader      ContentLoader
	vision      llm.VisionDescriber
	transcriber llm.Transcriber
	text        llm.TextGenerator
	embedder    llm.EmbeddingGenerator

	stepTimeout time.Duration
	batchSize   int
	now         func() time.Time
}

// NewAnalysisPipeline creates a pipeline using the step timeout and batch size from cfg.
func NewAnalysisPipeline(deps PipelineDeps, cfg Config) *AnalysisPipeline {
	p := &AnalysisPipeline{
		media:       deps.Media,
		objects:     deps.Objects,
		vectors:     deps.Vectors,
		loader:      deps.Loader,
		vision:      deps.Vision,
		transcriber: deps.Transcriber,
		text:        deps.Text,
		embedder:    deps.Embedder,
		stepTimeout: cfg.StepTimeout,
		batchSize:   cfg.AnalysisBatch,
		now:         time.Now,
	}
	if p.stepTimeout <= 0 {
		p.stepTimeout = DefaultConfig().StepTimeout
	}
	if p.batchSize < 1 {
		p.batchSize = DefaultConfig().AnalysisBatch
	}
	return p
}

// analysisResult accumulates what one pass derived.
type analysisResult struct {
	description string
	transcript  string
	segments    []types.TranscriptSegment
	embedding   []float32
	objects     []llm.ObjectResponse
	errs        []string
}

func (r *analysisResult) fail(step string, err error) {
	r.errs = append(r.errs, fmt.Sprintf("%s: %v", step, err))
}

// Analyze runs the pipeline for one record and reports the description it
// produced. ok is false when no description could be derived, including when
// the content is unavailable (the record is then left untouched).
func (p *AnalysisPipeline) Analyze(ctx context.Context, rec *types.MediaRecord) (description string, ok bool) {
	description, err := p.analyze(ctx, rec)
	if err != nil {
		log.Printf("Pipeline: ERROR - failed to persist analysis for %s: %v", rec.ID, err)
		return description, false
	}
	return description, description != ""
}

// analyze returns an error only when persisting the result failed, so callers
// can retry. Model failures are folded into the stored AnalysisError.
func (p *AnalysisPipeline) analyze(ctx context.Context, rec *types.MediaRecord) (string, error) {
	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("media.id", rec.ID),
		attribute.String("media.modality", string(rec.Modality)),
	)

	if p.loader == nil {
		log.Printf("Pipeline: No content loader configured, skipping %s", rec.ID)
		return "", nil
	}
	blob, err := p.loader.Load(ctx, rec)
	if err != nil {
		log.Printf("Pipeline: Content unavailable for %s, skipping: %v", rec.ID, err)
		span.SetStatus(codes.Error, "content unavailable")
		return "", nil
	}

	log.Printf("Pipeline: Starting analysis for %s (%s, %s, %d bytes)", rec.ID, rec.Modality, blob.MimeType, len(blob.Data))
	res := &analysisResult{}

	switch rec.Modality {
	case types.ModalityPhoto:
		p.describePhoto(ctx, blob, res)
	case types.ModalityAudio:
		p.describeAudio(ctx, blob, res)
	case types.ModalityVideo:
		p.describeVideo(ctx, blob, res)
	default:
		res.fail("analysis", fmt.Errorf("unknown modality %q", rec.Modality))
	}

	if res.description != "" {
		p.embed(ctx, res)
		p.extractObjects(ctx, res)
	}

	if err := p.persist(ctx, rec, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return res.description, err
	}

	span.SetAttributes(
		attribute.Int("analysis.objects", len(res.objects)),
		attribute.Int("analysis.errors", len(res.errs)),
	)
	if res.description == "" {
		log.Printf("Pipeline: WARNING - No description derived for %s: %s", rec.ID, strings.Join(res.errs, "; "))
	} else {
		log.Printf("Pipeline: Completed analysis for %s (%d objects, %d step errors)", rec.ID, len(res.objects), len(res.errs))
	}
	return res.description, nil
}

func (p *AnalysisPipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.stepTimeout)
}

func (p *AnalysisPipeline) describePhoto(ctx context.Context, blob *content.Blob, res *analysisResult) {
	if p.vision == nil {
		res.fail("vision", errors.New("no vision model configured"))
		return
	}
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	desc, err := p.vision.Describe(stepCtx, llm.PhotoVisionPrompt, blob.Data, blob.MimeType)
	if err != nil {
		log.Printf("Pipeline: Vision description failed: %v", err)
		res.fail("vision", err)
		return
	}
	res.description = strings.TrimSpace(desc)
}

func (p *AnalysisPipeline) describeAudio(ctx context.Context, blob *content.Blob, res *analysisResult) {
	if !p.transcribe(ctx, blob, res) {
		return
	}
	keywords := p.keywords(ctx, res)
	res.description = audioDescription(res.transcript, keywords)
}

func (p *AnalysisPipeline) describeVideo(ctx context.Context, blob *content.Blob, res *analysisResult) {
	// The audio track is optional; silent clips still get a visual description.
	p.transcribe(ctx, blob, res)

	var visual string
	if p.vision == nil {
		res.fail("vision", errors.New("no vision model configured"))
	} else {
		stepCtx, cancel := p.stepContext(ctx)
		desc, err := p.vision.Describe(stepCtx, llm.VideoVisionPrompt, blob.Data, blob.MimeType)
		cancel()
		switch {
		case errors.Is(err, llm.ErrUnsupportedMedia):
			log.Printf("Pipeline: Vision model %s cannot read %s, using the transcript only", p.vision.GetModel(), blob.MimeType)
			res.fail("vision", err)
		case err != nil:
			log.Printf("Pipeline: Video description failed: %v", err)
			res.fail("vision", err)
		default:
			visual = strings.TrimSpace(desc)
		}
	}

	res.description = videoDescription(visual, res.transcript)
}

// transcribe stores the transcript and segments on res and reports whether any speech was found.
func (p *AnalysisPipeline) transcribe(ctx context.Context, blob *content.Blob, res *analysisResult) bool {
	if p.transcriber == nil {
		res.fail("transcription", errors.New("no transcriber configured"))
		return false
	}
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	tr, err := p.transcriber.Transcribe(stepCtx, blob.Data, blob.FileName)
	if err != nil {
		log.Printf("Pipeline: Transcription failed: %v", err)
		res.fail("transcription", err)
		return false
	}
	res.transcript = strings.TrimSpace(tr.Text)
	res.segments = tr.Segments
	return res.transcript != ""
}

func (p *AnalysisPipeline) keywords(ctx context.Context, res *analysisResult) []string {
	if p.text == nil {
		return nil
	}
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	raw, err := p.text.Complete(stepCtx, llm.KeywordExtractionPrompt(res.transcript))
	if err != nil {
		log.Printf("Pipeline: Keyword extraction failed: %v", err)
		res.fail("keywords", err)
		return nil
	}
	keywords, err := llm.ParseKeywordResponse(raw)
	if err != nil {
		log.Printf("Pipeline: Keyword response unparseable: %v", err)
		res.fail("keywords", err)
		return nil
	}
	return keywords
}

func (p *AnalysisPipeline) embed(ctx context.Context, res *analysisResult) {
	if p.embedder == nil {
		res.fail("embedding", errors.New("no embedding model configured"))
		return
	}
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	vec, err := p.embedder.Embed(stepCtx, res.description)
	if err != nil {
		log.Printf("Pipeline: Embedding failed: %v", err)
		res.fail("embedding", err)
		return
	}
	res.embedding = vec
}

func (p *AnalysisPipeline) extractObjects(ctx context.Context, res *analysisResult) {
	if p.text == nil {
		res.fail("objects", errors.New("no text model configured"))
		return
	}
	stepCtx, cancel := p.stepContext(ctx)
	defer cancel()

	raw, err := p.text.Complete(stepCtx, llm.ObjectExtractionPrompt(res.description))
	if err != nil {
		log.Printf("Pipeline: Object extraction failed: %v", err)
		res.fail("objects", err)
		return
	}
	objects, err := llm.ParseObjectResponse(raw)
	if err != nil {
		log.Printf("Pipeline: Object response unparseable: %v", err)
		res.fail("objects", err)
		return
	}
	res.objects = objects
}

// persist writes the vector record and the sightings, then the derived fields
// and final status, so a record never reads as completed before its evidence
// is searchable. Derived entries always mirror this pass: a pass that yields
// no embedding or no object list removes those left by an earlier one. When
// the record was deleted meanwhile the derived entries are removed again.
func (p *AnalysisPipeline) persist(ctx context.Context, rec *types.MediaRecord, res *analysisResult) error {
	var errs []error
	if p.vectors != nil {
		if len(res.embedding) > 0 {
			err := p.vectors.Append(ctx, types.VectorRecord{
				SourceRecordID: rec.ID,
				UserID:         rec.UserID,
				Embedding:      res.embedding,
				TimeSpan:       types.NewTimeSpan(rec.CapturedAt, rec.Duration),
				Modality:       rec.Modality,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to append vector: %w", err))
			}
		} else if err := p.vectors.Delete(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove stale vector: %w", err))
		}
	}

	if p.objects != nil {
		if _, err := p.objects.DeleteBySource(ctx, rec.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear sightings: %w", err))
		}
		for _, obj := range res.objects {
			_, err := p.objects.Upsert(ctx, types.ObjectSighting{
				Label:            types.NormalizeLabel(obj.Label),
				SourceRecordID:   rec.ID,
				ConfirmedAt:      rec.CapturedAt,
				BaseConfidence:   obj.Confidence,
				ConfirmationType: obj.Verification,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to upsert sighting %q: %w", obj.Label, err))
			}
		}
	}

	status := types.StatusCompleted
	if res.description == "" {
		status = types.StatusFailed
	}
	update := storage.AnalysisUpdate{
		Description:        res.description,
		Transcript:         res.transcript,
		TranscriptSegments: res.segments,
		Embedding:          res.embedding,
		ObjectCount:        len(res.objects),
		Status:             status,
		AnalysisError:      strings.Join(res.errs, "; "),
		AnalyzedAt:         p.now(),
	}
	if err := p.media.UpdateAnalysis(ctx, rec.ID, update); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			p.discardDerived(ctx, rec.ID)
		}
		return errors.Join(append(errs, fmt.Errorf("failed to update analysis: %w", err))...)
	}
	update.Apply(rec)
	return errors.Join(errs...)
}

func (p *AnalysisPipeline) discardDerived(ctx context.Context, id string) {
	if p.vectors != nil {
		if err := p.vectors.Delete(ctx, id); err != nil {
			log.Printf("Pipeline: WARNING - failed to remove vector of deleted media %s: %v", id, err)
		}
	}
	if p.objects != nil {
		if _, err := p.objects.DeleteBySource(ctx, id); err != nil {
			log.Printf("Pipeline: WARNING - failed to remove sightings of deleted media %s: %v", id, err)
		}
	}
}

// ReanalyzeAll runs Analyze over records in batches. Records within a batch
// run concurrently; batches run one after another. It returns the number of
// records that ended with a non-empty description.
func (p *AnalysisPipeline) ReanalyzeAll(ctx context.Context, records []types.MediaRecord) int {
	var described atomic.Int64

	for start := 0; start < len(records); start += p.batchSize {
		if ctx.Err() != nil {
			log.Printf("Pipeline: Re-analysis cancelled after %d of %d records", start, len(records))
			break
		}
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(rec types.MediaRecord) {
				defer wg.Done()
				if _, ok := p.Analyze(ctx, &rec); ok {
					described.Add(1)
				}
			}(records[i])
		}
		wg.Wait()
	}

	n := int(described.Load())
	log.Printf("Pipeline: Re-analysis complete, %d of %d records described", n, len(records))
	return n
}

// audioDescription builds "Audio recording: <transcript>. Keywords: <k1, k2>".
func audioDescription(transcript string, keywords []string) string {
	transcript = strings.TrimRight(strings.TrimSpace(transcript), ".")
	if len(keywords) == 0 {
		return "Audio recording: " + transcript + "."
	}
	return "Audio recording: " + transcript + ". Keywords: " + strings.Join(keywords, ", ")
}

// videoDescription joins the visual description with the spoken words.
func videoDescription(visual, transcript string) string {
	switch {
	case transcript == "":
		return visual
	case visual == "":
		return "Spoken words: " + transcript
	default:
		return visual + " Spoken words: " + transcript
	}
}
