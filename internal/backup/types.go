// Package backup takes consistent snapshots of the SQLite database on a
// schedule and prunes all but the newest few.
package backup

import "time"

// Config holds snapshot settings.
type Config struct {
	// DBPath is the SQLite database to snapshot.
	DBPath string

	// BackupDir receives the snapshot files.
	BackupDir string

	// Keep is how many snapshots survive pruning (default: 7).
	Keep int

	// Verify runs an integrity check on every new snapshot.
	Verify bool
}

// Info describes one snapshot file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Result is the outcome of one snapshot.
type Result struct {
	Path     string
	Duration time.Duration
	Size     int64
	Verified bool
}
