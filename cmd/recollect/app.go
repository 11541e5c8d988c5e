package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/scrypster/recollect/internal/config"
	"github.com/scrypster/recollect/internal/content"
	"github.com/scrypster/recollect/internal/engine"
	"github.com/scrypster/recollect/internal/llm"
	"github.com/scrypster/recollect/internal/remote"
	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/storage/chromemdb"
	"github.com/scrypster/recollect/internal/storage/memory"
	"github.com/scrypster/recollect/internal/storage/postgres"
	"github.com/scrypster/recollect/internal/storage/sqlite"
)

// app is the wired engine with the resources it owns.
type app struct {
	cfg     *config.Config
	engine  *engine.MediaEngine
	closers []func() error
}

// stores are the three repositories of one deployment.
type stores struct {
	media   storage.MediaRepository
	objects storage.ObjectMemoryRepository
	vectors storage.VectorMemoryRepository
}

// newApp opens storage, builds the model providers and assembles the engine.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	s, err := a.openStores()
	if err != nil {
		a.close()
		return nil, err
	}

	providers, err := llm.NewProviders(ctx, cfg.Models)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize model providers: %w", err)
	}

	queryEmbedder, err := engine.NewCachedEmbedder(providers.Embedder, cfg.Retrieval.EmbeddingCache)
	if err != nil {
		a.close()
		return nil, err
	}
	if cached, ok := queryEmbedder.(*engine.CachedEmbedder); ok {
		a.closers = append(a.closers, func() error { cached.Close(); return nil })
	}

	concepts, err := engine.LoadConcepts(cfg.Retrieval.ConceptsFile)
	if err != nil {
		a.close()
		return nil, err
	}

	deps := engine.EngineDeps{
		Media:         s.media,
		Objects:       s.objects,
		Vectors:       s.vectors,
		Loader:        content.NewLoader(content.LoaderConfig{MaxBytes: int64(cfg.Security.MaxUploadMB) << 20, AllowFiles: true}),
		Vision:        providers.Vision,
		Transcriber:   providers.Transcriber,
		Text:          providers.Text,
		Embedder:      providers.Embedder,
		QueryEmbedder: queryEmbedder,
		Concepts:      concepts,
	}
	if cfg.Remote.URL != "" {
		client, err := remote.NewClient(cfg.Remote)
		if err != nil {
			a.close()
			return nil, err
		}
		deps.Remote = client
		log.Printf("Centralized retrieval enabled: %s", cfg.Remote.URL)
	}

	a.engine, err = engine.NewMediaEngine(deps, engine.ConfigFromGlobal(cfg))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize media engine: %w", err)
	}

	for name, hc := range providers.HealthCheckers() {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := hc.HealthCheck(checkCtx); err != nil {
			log.Printf("WARNING: %s model backend unreachable: %v", name, err)
		}
		cancel()
	}
	return a, nil
}

func (a *app) openStores() (*stores, error) {
	cfg := a.cfg.Storage
	var s stores

	switch cfg.Engine {
	case "memory":
		s = stores{
			media:   memory.NewMediaRepository(),
			objects: memory.NewObjectRepository(),
			vectors: memory.NewVectorRepository(),
		}
		log.Println("Storage: in-memory (records are lost on exit)")

	case "sqlite":
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path := sqlitePath(cfg)
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		s = stores{media: store, objects: store.Objects(), vectors: store.Vectors()}
		log.Printf("Storage: sqlite at %s", path)

	case "postgres":
		store, err := postgres.NewStore(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		s = stores{media: store, objects: store.Objects(), vectors: store.Vectors()}
		log.Println("Storage: postgres")

	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}

	if cfg.VectorEngine == "chromem" {
		path := filepath.Join(cfg.DataPath, "vectors")
		vectors, err := chromemdb.NewVectorRepository(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem vector store: %w", err)
		}
		s.vectors = vectors
		log.Printf("Vectors: chromem at %s", path)
	}
	return &s, nil
}

// sqlitePath is the database file of the sqlite engine.
func sqlitePath(cfg config.StorageConfig) string {
	return filepath.Join(cfg.DataPath, "recollect.db")
}

// sharesStorage reports whether other processes can see this deployment's
// records, which is when status events are worth relaying.
func sharesStorage(cfg config.StorageConfig) bool {
	return cfg.Engine != "memory"
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		log.Printf("Error closing resources: %v", err)
	}
}
