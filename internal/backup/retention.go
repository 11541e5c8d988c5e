package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// listSnapshots returns the snapshot files in dir, newest first. Snapshot
// names embed their UTC start time, so name order is creation order.
func listSnapshots(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snaps []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		ts, err := time.Parse(timeLayout, strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Info{
			Path:      filepath.Join(dir, name),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

// prune deletes all but the keep newest snapshots. It keeps going after a
// failed removal and reports the last error.
func prune(dir string, keep int) error {
	snaps, err := listSnapshots(dir)
	if err != nil {
		return err
	}
	if len(snaps) <= keep {
		return nil
	}

	var lastErr error
	for _, snap := range snaps[keep:] {
		if err := os.Remove(snap.Path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return nil
}
