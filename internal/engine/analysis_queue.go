package engine

import (
	"context"
	"log"
	"time"
)

// queueAnalysisJob attempts to queue an analysis job.
// Returns true if the job was queued successfully, false if the queue is full or closed.
func (e *MediaEngine) queueAnalysisJob(job *analysisJob) bool {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()

	// Shutdown in progress
	if e.queueClosed || (e.workerCtx != nil && e.workerCtx.Err() != nil) {
		return false
	}

	select {
	case e.analysisQueue <- job:
		return true
	default:
		log.Printf("WARNING: Analysis queue full (size=%d), dropping job for media %s",
			e.config.QueueSize, job.RecordID)
		return false
	}
}

// createAnalysisJob creates a new analysis job for a record.
func (e *MediaEngine) createAnalysisJob(recordID string, attempt int) *analysisJob {
	return &analysisJob{
		RecordID:  recordID,
		Timestamp: time.Now(),
		Attempt:   attempt,
	}
}

// requeueAnalysisJob attempts to requeue a failed analysis job.
// Returns true if the job was requeued, false if max retries exceeded or queue full.
func (e *MediaEngine) requeueAnalysisJob(ctx context.Context, job *analysisJob) bool {
	e.queueMu.RLock()
	defer e.queueMu.RUnlock()

	if e.queueClosed || (e.workerCtx != nil && e.workerCtx.Err() != nil) {
		log.Printf("WARNING: Failed to requeue job for media %s, shutdown in progress", job.RecordID)
		return false
	}

	if job.Attempt >= e.config.MaxRetries {
		log.Printf("Max retries (%d) exceeded for media %s, giving up",
			e.config.MaxRetries, job.RecordID)
		return false
	}

	job.Attempt++

	select {
	case e.analysisQueue <- job:
		log.Printf("Requeued analysis job for media %s (attempt %d/%d)",
			job.RecordID, job.Attempt, e.config.MaxRetries)
		return true
	case <-ctx.Done():
		return false
	case <-time.After(10 * time.Millisecond):
		log.Printf("WARNING: Failed to requeue job for media %s, queue timeout", job.RecordID)
		return false
	}
}

// getQueueLength returns the current number of jobs in the queue.
func (e *MediaEngine) getQueueLength() int {
	return len(e.analysisQueue)
}
