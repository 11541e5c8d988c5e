package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/pkg/types"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "ask", "reanalyze", "status", "backup"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	assert.NotNil(t, askCmd.Flags().Lookup("trace"))
	assert.NotNil(t, statusCmd.Flags().Lookup("wait"))
}

func TestLoadConfig_FromFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recollect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nstorage:\n  engine: memory\n"), 0o600))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Engine)
}

func TestPrintAnswer(t *testing.T) {
	seen := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printAnswer(&buf, &types.SearchResult{
		Answer:          "Your keys: last seen on Tue Mar 10 2026 at 12:00.",
		ConfidenceLabel: types.ConfidenceHigh,
		Path:            types.PathObject,
		ExpandedTerms:   []string{"keys", "key"},
		Proof:           []types.Proof{{Type: types.ProofVisual, MediaID: "m1", Detail: "keys", Timestamp: &seen}},
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Your keys: last seen"))
	assert.Contains(t, out, "Confidence: High (via object)")
	assert.Contains(t, out, "Searched for: keys, key")
	assert.Contains(t, out, "[object] m1: keys (2026-03-10 12:00)")
}

func TestPrintAnswer_NoProof(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(&buf, &types.SearchResult{
		Answer:          "I don't have any evidence about that yet.",
		ConfidenceLabel: types.ConfidenceNone,
		Path:            types.PathNoEvidence,
		ExpandedTerms:   []string{"hat"},
	})
	assert.NotContains(t, buf.String(), "Proof:")
	assert.NotContains(t, buf.String(), "Searched for:")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, "m1", types.StatusCompleted, true)
	printStatus(&buf, "m2", types.StatusProcessing, false)
	assert.Equal(t, "m1: completed\nm2: processing (still running when polling stopped)\n", buf.String())
}

func TestNewApp_MemoryStorage(t *testing.T) {
	cfg, err := config.LoadConfigFile("")
	require.NoError(t, err)
	cfg.Storage.Engine = "memory"
	cfg.Models.TranscriptionProvider = "none"
	cfg.Retrieval.EmbeddingCache = 0

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.engine)
	_, err = a.engine.Status(context.Background(), "missing")
	assert.Error(t, err)
}

func TestOpenStores_UnknownEngine(t *testing.T) {
	a := &app{cfg: &config.Config{Storage: config.StorageConfig{Engine: "mongo"}}}
	_, err := a.openStores()
	assert.Error(t, err)
}

func TestOpenStores_SQLiteWithChromemVectors(t *testing.T) {
	dir := t.TempDir()
	a := &app{cfg: &config.Config{Storage: config.StorageConfig{Engine: "sqlite", DataPath: dir, VectorEngine: "chromem"}}}
	s, err := a.openStores()
	require.NoError(t, err)
	defer a.close()

	assert.NotNil(t, s.media)
	assert.NotNil(t, s.objects)
	assert.NotNil(t, s.vectors)
	assert.FileExists(t, filepath.Join(dir, "recollect.db"))
}

func TestStartBackups_OnlyForSQLite(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Engine: "memory", DataPath: t.TempDir()},
		Jobs:    config.JobsConfig{BackupSchedule: "@daily", BackupKeep: 3},
	}
	svc, err := startBackups(cfg)
	require.NoError(t, err)
	assert.Nil(t, svc)

	cfg.Storage.Engine = "sqlite"
	cfg.Jobs.BackupSchedule = ""
	svc, err = startBackups(cfg)
	require.NoError(t, err)
	assert.Nil(t, svc)

	cfg.Jobs.BackupSchedule = "@daily"
	svc, err = startBackups(cfg)
	require.NoError(t, err)
	require.NotNil(t, svc)
	svc.Stop()
	assert.DirExists(t, filepath.Join(cfg.Storage.DataPath, "backups"))
}

func TestNewBackupService_SnapshotsSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{Engine: "sqlite", DataPath: dir},
		Jobs:    config.JobsConfig{BackupKeep: 2},
	}
	a := &app{cfg: cfg}
	_, err := a.openStores()
	require.NoError(t, err)
	defer a.close()

	svc, err := newBackupService(cfg)
	require.NoError(t, err)
	result, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.FileExists(t, result.Path)

	cfg.Storage.Engine = "postgres"
	_, err = newBackupService(cfg)
	assert.Error(t, err)
}

func TestSharesStorage(t *testing.T) {
	assert.False(t, sharesStorage(config.StorageConfig{Engine: "memory"}))
	assert.True(t, sharesStorage(config.StorageConfig{Engine: "sqlite"}))
	assert.True(t, sharesStorage(config.StorageConfig{Engine: "postgres"}))
}
