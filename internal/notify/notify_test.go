package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/recollect/pkg/types"
)

type statusMsg struct {
	mediaID string
	status  types.ProcessingStatus
}

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Notify("media/abc:123", types.StatusCompleted); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasSuffix(name, eventSuffix) {
		t.Errorf("expected %s suffix, got %s", eventSuffix, name)
	}
	if strings.ContainsAny(strings.TrimSuffix(name, eventSuffix), "/:") {
		t.Errorf("unsanitized file name %s", name)
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()

	received := make(chan statusMsg, 4)
	watcher := NewEventWatcher(dir, func(mediaID string, status types.ProcessingStatus) {
		received <- statusMsg{mediaID, status}
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	NewEventWriter(dir).PublishStatus("m1", types.StatusProcessing)

	select {
	case msg := <-received:
		if msg.mediaID != "m1" {
			t.Errorf("expected media ID m1, got %s", msg.mediaID)
		}
		if msg.status != types.StatusProcessing {
			t.Errorf("expected status %s, got %s", types.StatusProcessing, msg.status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Consumed events are removed.
	deadline := time.Now().Add(time.Second)
	for {
		entries, _ := os.ReadDir(filepath.Join(dir, "events"))
		if len(entries) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected event file to be removed, %d left", len(entries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)
	if err := w.Notify("m1", types.StatusFailed); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if err := w.Notify("m2", types.StatusCompleted); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	received := make(chan statusMsg, 4)
	watcher := NewEventWatcher(dir, func(mediaID string, status types.ProcessingStatus) {
		received <- statusMsg{mediaID, status}
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	got := map[string]types.ProcessingStatus{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			got[msg.mediaID] = msg.status
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", i)
		}
	}
	if got["m1"] != types.StatusFailed || got["m2"] != types.StatusCompleted {
		t.Errorf("unexpected events %v", got)
	}
}

func TestEventWatcherSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events")
	if err := os.MkdirAll(events, 0o700); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(events, "1-bad"+eventSuffix), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	called := false
	watcher := NewEventWatcher(dir, func(string, types.ProcessingStatus) { called = true })
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	watcher.Stop()

	if called {
		t.Error("callback must not run for an invalid event file")
	}
	if _, err := os.Stat(filepath.Join(events, "1-bad"+eventSuffix)); !os.IsNotExist(err) {
		t.Error("invalid event file should be removed")
	}
}

func TestEventWatcherStopWithoutStart(t *testing.T) {
	watcher := NewEventWatcher(t.TempDir(), nil)
	watcher.Stop()
}
