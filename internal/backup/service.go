package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	snapshotPrefix = "recollect-"
	snapshotSuffix = ".db"
	timeLayout     = "20060102-150405.000000"
)

// Service snapshots one database file.
type Service struct {
	cfg Config

	mu       sync.Mutex
	cron     *cron.Cron
	lastSnap time.Time
}

// NewService validates cfg and creates the backup directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.BackupDir == "" {
		return nil, errors.New("backup directory is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Start schedules snapshots with a cron spec. A run still in progress when
// the next one is due causes that run to be skipped.
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("backup service is already running")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	log.Printf("Backup service started: schedule=%s, backup_dir=%s", schedule, s.cfg.BackupDir)
	return nil
}

// Stop cancels the schedule and waits for a running snapshot to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) runScheduled() {
	result, err := s.Snapshot(context.Background())
	if err != nil {
		log.Printf("ERROR: Scheduled backup failed: %v", err)
		return
	}
	log.Printf("Scheduled backup completed: path=%s, size=%d bytes, duration=%v, verified=%v",
		result.Path, result.Size, result.Duration, result.Verified)
}

// Snapshot writes a new snapshot now, verifies it when configured, and
// prunes old snapshots. Pruning failures are logged, not returned.
func (s *Service) Snapshot(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	name := snapshotPrefix + start.UTC().Format(timeLayout) + snapshotSuffix
	path := filepath.Join(s.cfg.BackupDir, name)
	if err := snapshotSQLite(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	result := &Result{Path: path, Size: info.Size()}

	if s.cfg.Verify {
		if err := verifySnapshot(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("snapshot verification failed: %w", err)
		}
		result.Verified = true
	}
	result.Duration = time.Since(start)

	s.mu.Lock()
	s.lastSnap = start
	s.mu.Unlock()

	if err := prune(s.cfg.BackupDir, s.cfg.Keep); err != nil {
		log.Printf("WARNING: failed to prune old backups: %v", err)
	}
	return result, nil
}

// List returns the stored snapshots, newest first.
func (s *Service) List() ([]Info, error) {
	return listSnapshots(s.cfg.BackupDir)
}

// LastSnapshot reports when the last successful snapshot started.
func (s *Service) LastSnapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap
}
