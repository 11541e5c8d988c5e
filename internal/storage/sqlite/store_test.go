package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/storage/storagetest"
	"github.com/scrypster/recollect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a file-backed store in a temp dir so WAL mode applies.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "recollect.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMediaRepository(t *testing.T) {
	storagetest.RunMediaRepositoryTests(t, func(t *testing.T) storage.MediaRepository {
		return newTestStore(t)
	})
}

func TestObjectRepository(t *testing.T) {
	storagetest.RunObjectRepositoryTests(t, func(t *testing.T) storage.ObjectMemoryRepository {
		return newTestStore(t).Objects()
	})
}

func TestVectorRepository(t *testing.T) {
	storagetest.RunVectorRepositoryTests(t, func(t *testing.T) storage.VectorMemoryRepository {
		return newTestStore(t).Vectors()
	})
}

func TestStore_ReopenKeepsDataAndSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	rec := storagetest.NewPhoto("keep", 0)
	rec.Content = []byte{0xff, 0xd8}
	rec.ContentURL = ""
	rec.Duration = 1500 * time.Millisecond
	require.NoError(t, store.Store(ctx, rec))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, got.Content)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)

	var version int
	require.NoError(t, store.DB().QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := storage.DecodeVector(storage.EncodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = storage.DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
	assert.Nil(t, storage.EncodeVector(nil))
}

func TestStore_RejectsUnknownModality(t *testing.T) {
	store := newTestStore(t)
	rec := storagetest.NewPhoto("bad", 0)
	rec.Modality = types.Modality("hologram")
	assert.ErrorIs(t, store.Store(context.Background(), rec), storage.ErrInvalidInput)
}

func TestDBPathFromDSN(t *testing.T) {
	assert.Equal(t, "", dbPathFromDSN(":memory:"))
	assert.Equal(t, "/tmp/a.db", dbPathFromDSN("/tmp/a.db"))
	assert.Equal(t, "/tmp/a.db", dbPathFromDSN("file:/tmp/a.db?mode=rwc"))
	assert.Equal(t, "", dbPathFromDSN("file::memory:?cache=shared"))
}
