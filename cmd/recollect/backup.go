package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/internal/backup"
	"github.com/scrypster/recollect/internal/config"
)

var backupList bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the sqlite database",
	Long:  `Writes a verified snapshot of the sqlite database to <data_path>/backups and prunes old snapshots. With --list, only lists existing snapshots.`,
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().BoolVarP(&backupList, "list", "l", false, "List snapshots instead of taking one")
}

func newBackupService(cfg *config.Config) (*backup.Service, error) {
	if cfg.Storage.Engine != "sqlite" {
		return nil, errors.New("backups are only supported for the sqlite storage engine")
	}
	return backup.NewService(backup.Config{
		DBPath:    sqlitePath(cfg.Storage),
		BackupDir: filepath.Join(cfg.Storage.DataPath, "backups"),
		Keep:      cfg.Jobs.BackupKeep,
		Verify:    true,
	})
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newBackupService(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !backupList {
		result, err := svc.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s (%d bytes, verified=%v)\n", result.Path, result.Size, result.Verified)
		return nil
	}

	snaps, err := svc.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No snapshots")
		return nil
	}
	for _, s := range snaps {
		fmt.Fprintf(out, "%s  %s  %d bytes\n", s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.Path, s.Size)
	}
	return nil
}
