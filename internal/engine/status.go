package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
)

// StatusObserver is notified after a record's processing status changes.
type StatusObserver func(mediaID string, status types.ProcessingStatus)

// OnStatusChange registers an observer for status transitions.
// Observers run synchronously on the goroutine that changed the status.
func (e *MediaEngine) OnStatusChange(observer StatusObserver) {
	if observer == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, observer)
}

// setStatus persists a status and notifies observers.
func (e *MediaEngine) setStatus(ctx context.Context, id string, status types.ProcessingStatus) error {
	if err := e.media.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	e.notifyStatus(id, status)
	return nil
}

func (e *MediaEngine) notifyStatus(id string, status types.ProcessingStatus) {
	e.mu.RLock()
	observers := append([]StatusObserver(nil), e.observers...)
	e.mu.RUnlock()

	for _, observe := range observers {
		observe(id, status)
	}
}

// Status returns the current processing status of a record.
func (e *MediaEngine) Status(ctx context.Context, id string) (types.ProcessingStatus, error) {
	rec, err := e.media.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// WaitForStatus polls a record until it reaches completed or failed.
// It returns the last observed status and whether a terminal status was
// reached; a timeout, a cancelled context or a missing record return false.
// Zero interval or timeout use the engine defaults (2s, 5m).
func (e *MediaEngine) WaitForStatus(ctx context.Context, id string, interval, timeout time.Duration) (types.ProcessingStatus, bool) {
	if interval <= 0 {
		interval = e.config.PollInterval
	}
	if timeout <= 0 {
		timeout = e.config.PollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last types.ProcessingStatus
	for {
		rec, err := e.media.Get(ctx, id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return last, false
		case err != nil:
			log.Printf("WARNING: status poll for %s failed: %v", id, err)
		default:
			last = rec.Status
			if last.IsTerminal() {
				return last, true
			}
		}

		select {
		case <-ctx.Done():
			return last, false
		case <-ticker.C:
		}
	}
}
