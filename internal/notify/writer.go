// Package notify relays processing status changes between recollect
// processes that share a data directory. A CLI run writes event files; the
// serving process watches the directory and pushes them to its clients.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

const eventSuffix = ".event"

// Event is the payload of one event file.
type Event struct {
	Type    string                 `json:"type"`
	MediaID string                 `json:"media_id"`
	Status  types.ProcessingStatus `json:"status"`
	Time    int64                  `json:"time"`
}

// EventWriter writes event files to {dataPath}/events/.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer for dataPath.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: eventDir(dataPath)}
}

// Notify writes one event file. The file appears under its final name only
// once fully written. Safe for concurrent use.
func (w *EventWriter) Notify(mediaID string, status types.ProcessingStatus) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:    types.StatusEventType,
		MediaID: mediaID,
		Status:  status,
		Time:    time.Now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := fmt.Sprintf("%d-%s", evt.Time, sanitizeID(mediaID))
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventSuffix)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

// PublishStatus is Notify with errors logged. Its signature matches
// engine.StatusObserver.
func (w *EventWriter) PublishStatus(mediaID string, status types.ProcessingStatus) {
	if err := w.Notify(mediaID, status); err != nil {
		log.Printf("WARNING: %v", err)
	}
}

func eventDir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.':
			return '_'
		}
		return r
	}, id)
}
