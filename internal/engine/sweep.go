package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// sweepTimeout bounds a single scheduled sweep.
const sweepTimeout = 30 * time.Minute

// startSweep schedules the periodic re-analysis of pending and failed records.
// An empty schedule disables it.
func (e *MediaEngine) startSweep(ctx context.Context) error {
	if e.config.SweepSchedule == "" {
		return nil
	}

	e.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := e.cron.AddFunc(e.config.SweepSchedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		e.runSweep(runCtx)
	})
	if err != nil {
		e.cron = nil
		return fmt.Errorf("invalid sweep schedule %q: %w", e.config.SweepSchedule, err)
	}

	e.cron.Start()
	log.Printf("Re-analysis sweep scheduled (%s)", e.config.SweepSchedule)
	return nil
}

// stopSweep stops the scheduler and waits for a running sweep to finish.
func (e *MediaEngine) stopSweep() {
	if e.cron == nil {
		return
	}
	<-e.cron.Stop().Done()
	e.cron = nil
	log.Println("Re-analysis sweep stopped")
}

func (e *MediaEngine) runSweep(ctx context.Context) {
	log.Println("Starting scheduled re-analysis sweep")
	described, total, err := e.Sweep(ctx)
	if err != nil {
		log.Printf("ERROR: Re-analysis sweep failed: %v", err)
		return
	}
	log.Printf("Re-analysis sweep completed: %d of %d records described", described, total)
}

// Sweep re-analyzes every record that is pending or failed. It returns the
// number of records that ended with a description and the number attempted.
func (e *MediaEngine) Sweep(ctx context.Context) (described, total int, err error) {
	records, err := e.listAll(ctx, storage.ListOptions{
		Statuses: []types.ProcessingStatus{types.StatusPending, types.StatusFailed},
	})
	if err != nil {
		return 0, 0, err
	}
	return e.reanalyze(ctx, records), len(records), nil
}
