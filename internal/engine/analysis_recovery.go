package engine

import (
	"context"
	"log"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// recoveryBatchSize is the page size used when scanning for interrupted analyses.
const recoveryBatchSize = 100

// RecoverPendingAnalyses queues records left pending or processing by a previous run.
// It is called automatically during Start() so uploads are never stranded.
// Records updated after Start are skipped; Ingest has already queued them.
func (e *MediaEngine) RecoverPendingAnalyses(ctx context.Context) error {
	e.mu.RLock()
	cutoff := e.startedAt
	e.mu.RUnlock()

	log.Println("Starting analysis recovery for pending media...")

	var ids []string
	opts := storage.ListOptions{
		Statuses: []types.ProcessingStatus{types.StatusPending, types.StatusProcessing},
		Limit:    recoveryBatchSize,
		Page:     1,
	}
	for {
		result, err := e.media.List(ctx, opts)
		if err != nil {
			log.Printf("ERROR: Failed to list pending media for recovery: %v", err)
			return err
		}
		for _, rec := range result.Items {
			if !cutoff.IsZero() && rec.UpdatedAt.After(cutoff) {
				continue
			}
			ids = append(ids, rec.ID)
		}
		if !result.HasMore || len(result.Items) == 0 {
			break
		}
		opts.Page++
	}

	if len(ids) == 0 {
		log.Println("No pending media to recover")
		return nil
	}

	// Collected before queueing: workers change statuses the listing filters on.
	totalQueued := 0
	for _, id := range ids {
		if e.queueAnalysisJob(e.createAnalysisJob(id, 0)) {
			totalQueued++
			continue
		}
		// Queue is full, leave it for the sweep
		if err := e.setStatus(ctx, id, types.StatusFailed); err != nil {
			log.Printf("ERROR: Failed to mark media %s as failed: %v", id, err)
		}
	}

	log.Printf("Recovery complete: queued %d of %d pending analyses", totalQueued, len(ids))
	return nil
}
