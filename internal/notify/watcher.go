package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/recollect/pkg/types"
)

// EventWatcher watches the events directory and dispatches each event once.
type EventWatcher struct {
	dir      string
	callback func(mediaID string, status types.ProcessingStatus)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/. The callback
// signature matches engine.StatusObserver.
func NewEventWatcher(dataPath string, callback func(mediaID string, status types.ProcessingStatus)) *EventWatcher {
	return &EventWatcher{
		dir:      eventDir(dataPath),
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start drains event files left from before, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	log.Printf("notify: watching %s for status events", ew.dir)
	return nil
}

// Stop shuts down the watcher. It is a no-op if Start never succeeded.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
	ew.watcher = nil
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			// Writers rename finished files into place, which arrives as Create.
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, eventSuffix) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), eventSuffix) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("notify: invalid event file %s: %v", filepath.Base(path), err)
		return
	}

	if event.MediaID != "" && ew.callback != nil {
		ew.callback(event.MediaID, event.Status)
	}
}
