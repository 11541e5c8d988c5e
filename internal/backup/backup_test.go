package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// newTestDB creates a small SQLite database with one media row.
func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recollect.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE media (id TEXT PRIMARY KEY, description TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO media (id, description) VALUES ('m1', 'keys on the kitchen counter')`); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}
	return path
}

func writeSnapshotFile(t *testing.T, dir string, ts time.Time) string {
	t.Helper()
	path := filepath.Join(dir, snapshotPrefix+ts.UTC().Format(timeLayout)+snapshotSuffix)
	if err := os.WriteFile(path, []byte("sqlite"), 0o644); err != nil {
		t.Fatalf("failed to create snapshot file: %v", err)
	}
	return path
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(Config{BackupDir: t.TempDir()}); err == nil {
		t.Error("expected error without a database path")
	}
	if _, err := NewService(Config{DBPath: "x.db"}); err == nil {
		t.Error("expected error without a backup directory")
	}

	dir := filepath.Join(t.TempDir(), "nested", "backups")
	svc, err := NewService(Config{DBPath: "x.db", BackupDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.cfg.Keep != 7 {
		t.Errorf("expected default keep 7, got %d", svc.cfg.Keep)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("backup directory not created: %v", err)
	}
}

func TestSnapshot_CopiesDatabase(t *testing.T) {
	dbPath := newTestDB(t)
	svc, err := NewService(Config{DBPath: dbPath, BackupDir: t.TempDir(), Verify: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !result.Verified {
		t.Error("expected a verified snapshot")
	}
	if result.Size == 0 {
		t.Error("expected a non-empty snapshot")
	}
	if svc.LastSnapshot().IsZero() {
		t.Error("expected LastSnapshot to be set")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", result.Path))
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()

	var description string
	if err := db.QueryRow(`SELECT description FROM media WHERE id = 'm1'`).Scan(&description); err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	if description != "keys on the kitchen counter" {
		t.Errorf("unexpected description %q", description)
	}
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	svc, err := NewService(Config{DBPath: filepath.Join(t.TempDir(), "absent.db"), BackupDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for a missing database")
	}
	if !svc.LastSnapshot().IsZero() {
		t.Error("a failed snapshot must not update LastSnapshot")
	}
}

func TestSnapshot_PrunesOldSnapshots(t *testing.T) {
	dbPath := newTestDB(t)
	dir := t.TempDir()
	base := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		writeSnapshotFile(t, dir, base.Add(time.Duration(i)*time.Hour))
	}

	svc, err := NewService(Config{DBPath: dbPath, BackupDir: dir, Keep: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	snaps, err := svc.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots after pruning, got %d", len(snaps))
	}
	if snaps[0].Path != result.Path {
		t.Errorf("expected newest snapshot first, got %s", snaps[0].Path)
	}
}

func TestListSnapshots_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	want := writeSnapshotFile(t, dir, time.Now())

	for _, name := range []string{"readme.txt", "other.db", "recollect-garbage.db"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, snapshotPrefix+"dir"+snapshotSuffix), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	snaps, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Path != want {
		t.Errorf("expected only %s, got %+v", want, snaps)
	}
}

func TestListSnapshots_MissingDirectory(t *testing.T) {
	if _, err := listSnapshots("/nonexistent/backup/dir"); err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-10 * time.Hour)
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeSnapshotFile(t, dir, base.Add(time.Duration(i)*time.Hour)))
	}

	if err := prune(dir, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, p := range paths {
		_, err := os.Stat(p)
		kept := err == nil
		if wantKept := i >= 2; kept != wantKept {
			t.Errorf("snapshot %d: kept=%v, want %v", i, kept, wantKept)
		}
	}
}

func TestPrune_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	writeSnapshotFile(t, dir, time.Now())
	if err := prune(dir, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snaps, _ := listSnapshots(dir)
	if len(snaps) != 1 {
		t.Errorf("expected 1 snapshot, got %d", len(snaps))
	}
}

func TestStartStop(t *testing.T) {
	svc, err := NewService(Config{DBPath: newTestDB(t), BackupDir: t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Start("whenever"); err == nil {
		t.Fatal("expected error for an invalid schedule")
	}
	if err := svc.Start("@every 1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Start("@every 1h"); err == nil {
		t.Error("expected error when already running")
	}
	svc.Stop()
	svc.Stop()

	if err := svc.Start("@daily"); err != nil {
		t.Errorf("restart after Stop failed: %v", err)
	}
	svc.Stop()
}
