package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// ErrQueueFull is returned by Ingest when the record was stored but could not be queued.
var ErrQueueFull = errors.New("analysis queue full")

// EngineDeps are the collaborators of a MediaEngine.
type EngineDeps struct {
	Media   storage.MediaRepository
	Objects storage.ObjectMemoryRepository
	Vectors storage.VectorMemoryRepository
	Loader  ContentLoader

	Vision      llm.VisionDescriber
	Transcriber llm.Transcriber
	Text        llm.TextGenerator
	Embedder    llm.EmbeddingGenerator

	// QueryEmbedder embeds search queries, usually a CachedEmbedder around
	// Embedder. Defaults to Embedder.
	QueryEmbedder llm.EmbeddingGenerator

	Concepts *ConceptTable
	Remote   RemoteLookup
}

// MediaEngine is the composition root of the memory system. Ingest stores a
// record and returns immediately; analysis runs on a worker pool fed by a
// buffered queue, and Search walks the retrieval hierarchy.
type MediaEngine struct {
	config Config

	media   storage.MediaRepository
	objects storage.ObjectMemoryRepository
	vectors storage.VectorMemoryRepository

	pipeline     *AnalysisPipeline
	orchestrator *RetrievalOrchestrator

	// Analysis queue
	analysisQueue   chan *analysisJob
	queueMu         sync.RWMutex
	queueClosed     bool
	workerWaitGroup sync.WaitGroup
	workerCtx       context.Context
	workerCancel    context.CancelFunc

	cron *cron.Cron

	// State management
	started      bool
	startedAt    time.Time
	shuttingDown bool
	mu           sync.RWMutex

	observers []StatusObserver
}

// NewMediaEngine creates an engine. Media, Objects and Vectors are required.
func NewMediaEngine(deps EngineDeps, cfg Config) (*MediaEngine, error) {
	if deps.Media == nil || deps.Objects == nil || deps.Vectors == nil {
		return nil, fmt.Errorf("media, object and vector repositories are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	queryEmbedder := deps.QueryEmbedder
	if queryEmbedder == nil {
		queryEmbedder = deps.Embedder
	}

	e := &MediaEngine{
		config:        cfg,
		media:         deps.Media,
		objects:       deps.Objects,
		vectors:       deps.Vectors,
		analysisQueue: make(chan *analysisJob, cfg.QueueSize),
	}

	e.pipeline = NewAnalysisPipeline(PipelineDeps{
		Media:       deps.Media,
		Objects:     deps.Objects,
		Vectors:     deps.Vectors,
		Loader:      deps.Loader,
		Vision:      deps.Vision,
		Transcriber: deps.Transcriber,
		Text:        deps.Text,
		Embedder:    deps.Embedder,
	}, cfg)

	e.orchestrator = NewRetrievalOrchestrator(OrchestratorDeps{
		Media:    deps.Media,
		Objects:  deps.Objects,
		Vectors:  deps.Vectors,
		Text:     deps.Text,
		Embedder: queryEmbedder,
		Concepts: deps.Concepts,
		Remote:   deps.Remote,
	}, cfg)

	return e, nil
}

// Start starts the worker pool, the sweep scheduler and recovery of records
// left pending by a previous run.
func (e *MediaEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	log.Println("Starting media engine...")

	e.queueMu.Lock()
	if e.queueClosed {
		e.analysisQueue = make(chan *analysisJob, e.config.QueueSize)
		e.queueClosed = false
	}
	e.queueMu.Unlock()

	e.startedAt = time.Now()
	e.workerCtx, e.workerCancel = context.WithCancel(ctx)
	e.startWorkerPool(e.workerCtx)

	if err := e.startSweep(e.workerCtx); err != nil {
		e.workerCancel()
		_ = e.stopWorkerPool(ctx)
		return err
	}

	// Non-blocking so Start() returns quickly
	go func() {
		if err := e.RecoverPendingAnalyses(ctx); err != nil {
			log.Printf("ERROR: Analysis recovery failed: %v", err)
		}
	}()

	e.started = true
	log.Println("Media engine started successfully")
	return nil
}

// Shutdown stops the sweep, closes the queue and waits for workers to drain
// (bounded by ShutdownTimeout).
func (e *MediaEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}
	e.shuttingDown = true
	e.mu.Unlock()

	log.Println("Shutting down media engine...")

	e.stopSweep()

	// Stops workers from requeueing
	if e.workerCancel != nil {
		e.workerCancel()
	}

	if err := e.stopWorkerPool(ctx); err != nil {
		log.Printf("WARNING: Worker pool shutdown had errors: %v", err)
	}

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()
	log.Println("Media engine shut down successfully")
	return nil
}

// Ingest stores a new record as pending and queues it for analysis. A missing
// ID is generated; a zero CapturedAt becomes now. When the queue is full the
// record stays stored and is marked failed for the sweep, and ErrQueueFull is returned.
func (e *MediaEngine) Ingest(ctx context.Context, rec *types.MediaRecord) (*types.MediaRecord, error) {
	e.mu.RLock()
	canQueue := e.started && !e.shuttingDown
	e.mu.RUnlock()
	if !canQueue {
		return nil, fmt.Errorf("engine not started")
	}

	if rec == nil {
		return nil, fmt.Errorf("%w: record is required", storage.ErrInvalidInput)
	}
	if !types.IsValidModality(rec.Modality) {
		return nil, fmt.Errorf("%w: unknown media type %q", storage.ErrInvalidInput, rec.Modality)
	}

	now := time.Now()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = now
	}
	rec.Status = types.StatusPending
	rec.UpdatedAt = now

	if err := e.media.Store(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store media: %w", err)
	}
	e.notifyStatus(rec.ID, types.StatusPending)

	if !e.queueAnalysisJob(e.createAnalysisJob(rec.ID, 0)) {
		if err := e.setStatus(ctx, rec.ID, types.StatusFailed); err != nil {
			log.Printf("ERROR: Failed to mark media %s as failed: %v", rec.ID, err)
		}
		rec.Status = types.StatusFailed
		return rec, ErrQueueFull
	}
	return rec, nil
}

// Get retrieves a record by ID.
func (e *MediaEngine) Get(ctx context.Context, id string) (*types.MediaRecord, error) {
	return e.media.Get(ctx, id)
}

// List retrieves records with pagination and filtering.
func (e *MediaEngine) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.MediaRecord], error) {
	return e.media.List(ctx, opts)
}

// Delete removes a record together with its vector record and object sightings.
func (e *MediaEngine) Delete(ctx context.Context, id string) error {
	if err := e.media.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.vectors.Delete(ctx, id); err != nil {
		log.Printf("WARNING: Failed to delete vector for media %s: %v", id, err)
	}
	if n, err := e.objects.DeleteBySource(ctx, id); err != nil {
		log.Printf("WARNING: Failed to delete sightings for media %s: %v", id, err)
	} else if n > 0 {
		log.Printf("Deleted %d sightings confirmed by media %s", n, id)
	}
	return nil
}

// Search answers a question through the retrieval hierarchy. It never fails.
func (e *MediaEngine) Search(ctx context.Context, query string) *types.SearchResult {
	return e.orchestrator.Search(ctx, query)
}

// SearchWithTrace answers a question and reports how the answer was reached.
func (e *MediaEngine) SearchWithTrace(ctx context.Context, query string) (*types.SearchResult, *DebugRetrievalResult) {
	return e.orchestrator.SearchWithTrace(ctx, query)
}

// ReanalyzeAll re-runs analysis over every record of a user (all users when
// userID is empty). It returns the number of records that ended with a
// description and the number of records attempted.
func (e *MediaEngine) ReanalyzeAll(ctx context.Context, userID string) (described, total int, err error) {
	records, err := e.listAll(ctx, storage.ListOptions{UserID: userID})
	if err != nil {
		return 0, 0, err
	}
	return e.reanalyze(ctx, records), len(records), nil
}

// reanalyze runs the pipeline and publishes each record's resulting status.
func (e *MediaEngine) reanalyze(ctx context.Context, records []types.MediaRecord) int {
	if len(records) == 0 {
		return 0
	}
	described := e.pipeline.ReanalyzeAll(ctx, records)

	for _, rec := range records {
		current, err := e.media.Get(ctx, rec.ID)
		if err != nil {
			continue
		}
		e.notifyStatus(current.ID, current.Status)
	}
	return described
}

// GetQueueSize returns the current number of jobs in the analysis queue.
func (e *MediaEngine) GetQueueSize() int {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()
	return len(e.analysisQueue)
}

func (e *MediaEngine) listAll(ctx context.Context, opts storage.ListOptions) ([]types.MediaRecord, error) {
	opts.Page = 1
	opts.Limit = lexicalPageSize

	var all []types.MediaRecord
	for {
		page, err := e.media.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list media: %w", err)
		}
		all = append(all, page.Items...)
		if !page.HasMore || len(page.Items) == 0 {
			return all, nil
		}
		opts.Page++
	}
}
