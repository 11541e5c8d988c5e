package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/recollect/internal/backup"
	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/notify"
	"github.com/scrypster/recollect/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the analysis workers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(cfg, a.engine)
	defer srv.Close()

	if sharesStorage(cfg.Storage) {
		watcher := notify.NewEventWatcher(cfg.Storage.DataPath, srv.Hub().PublishStatus)
		if err := watcher.Start(); err != nil {
			log.Printf("WARNING: status events from other processes disabled: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	if backups, err := startBackups(cfg); err != nil {
		log.Printf("WARNING: scheduled backups disabled: %v", err)
	} else if backups != nil {
		defer backups.Stop()
	}

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start media engine: %w", err)
	}

	addr, done, err := srv.Listen(ctx)
	if err != nil {
		_ = a.engine.Shutdown(context.Background())
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "recollect listening on http://%s\n", addr)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
		serveErr = <-done
	case serveErr = <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down media engine: %v", err)
	}
	return serveErr
}

// startBackups schedules snapshots of the sqlite database. It returns nil
// when the engine is not sqlite or no schedule is configured.
func startBackups(cfg *config.Config) (*backup.Service, error) {
	if cfg.Storage.Engine != "sqlite" || cfg.Jobs.BackupSchedule == "" {
		return nil, nil
	}
	svc, err := newBackupService(cfg)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(cfg.Jobs.BackupSchedule); err != nil {
		return nil, err
	}
	return svc, nil
}
