package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// analysisWorker processes analysis jobs until the queue is closed.
func (e *MediaEngine) analysisWorker(ctx context.Context, workerID int) {
	defer e.workerWaitGroup.Done()

	log.Printf("Analysis worker %d started", workerID)

	for job := range e.analysisQueue {
		e.processAnalysisJob(ctx, workerID, job)
	}

	log.Printf("Analysis worker %d stopped", workerID)
}

// processAnalysisJob runs the pipeline for one record and drives its status
// through processing to completed or failed. Storage errors are retried with
// quadratic backoff; model failures are not.
func (e *MediaEngine) processAnalysisJob(ctx context.Context, workerID int, job *analysisJob) {
	log.Printf("Worker %d processing media %s (attempt %d)", workerID, job.RecordID, job.Attempt)

	// Status writes outlive shutdown cancellation
	dbCtx := context.Background()

	if job.Attempt > 0 {
		backoffDuration := time.Duration(job.Attempt*job.Attempt) * 100 * time.Millisecond // 100ms, 400ms, 900ms...
		log.Printf("Worker %d: Waiting %v before retry (attempt %d)", workerID, backoffDuration, job.Attempt)
		time.Sleep(backoffDuration)
	}

	rec, err := e.media.Get(dbCtx, job.RecordID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Printf("Worker %d: media %s was deleted before analysis", workerID, job.RecordID)
		return
	}
	if err != nil {
		log.Printf("ERROR: Worker %d failed to load media %s: %v", workerID, job.RecordID, err)
		e.retryOrFail(ctx, job)
		return
	}

	if err := e.setStatus(dbCtx, rec.ID, types.StatusProcessing); err != nil {
		log.Printf("ERROR: Worker %d failed to update status to processing for %s: %v",
			workerID, rec.ID, err)
		e.retryOrFail(ctx, job)
		return
	}

	description, err := e.pipeline.analyze(ctx, rec)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Worker %d: media %s was deleted during analysis", workerID, rec.ID)
			return
		}
		log.Printf("ERROR: Worker %d failed to persist analysis for %s: %v", workerID, rec.ID, err)
		e.retryOrFail(ctx, job)
		return
	}

	if description == "" {
		if err := e.setStatus(dbCtx, rec.ID, types.StatusFailed); err != nil {
			log.Printf("ERROR: Worker %d failed to mark %s as failed: %v", workerID, rec.ID, err)
		}
		log.Printf("Worker %d: analysis produced no description for %s", workerID, rec.ID)
		return
	}

	e.notifyStatus(rec.ID, types.StatusCompleted)
	log.Printf("Worker %d completed analysis for media %s", workerID, rec.ID)
}

// retryOrFail requeues the job, marking the record failed when that is not possible.
func (e *MediaEngine) retryOrFail(ctx context.Context, job *analysisJob) {
	if e.requeueAnalysisJob(ctx, job) {
		return
	}
	if err := e.setStatus(context.Background(), job.RecordID, types.StatusFailed); err != nil {
		log.Printf("ERROR: Failed to mark media %s as failed: %v", job.RecordID, err)
	}
}

// startWorkerPool starts the worker goroutines.
func (e *MediaEngine) startWorkerPool(ctx context.Context) {
	for i := 0; i < e.config.NumWorkers; i++ {
		e.workerWaitGroup.Add(1)
		go e.analysisWorker(ctx, i)
	}

	log.Printf("Started %d analysis workers", e.config.NumWorkers)
}

// stopWorkerPool closes the queue and waits for workers to drain.
func (e *MediaEngine) stopWorkerPool(ctx context.Context) error {
	e.queueMu.Lock()
	e.queueClosed = true
	close(e.analysisQueue)
	e.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.workerWaitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All analysis workers finished gracefully")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		log.Printf("WARNING: Shutdown timeout reached, %d analysis jobs may be dropped", e.getQueueLength())
		return nil
	case <-ctx.Done():
		log.Printf("WARNING: Context cancelled, %d analysis jobs may be dropped", e.getQueueLength())
		return ctx.Err()
	}
}
