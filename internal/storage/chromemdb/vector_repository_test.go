package chromemdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/internal/storage/chromemdb"
	"github.com/scrypster/recollect/internal/storage/storagetest"
	"github.com/scrypster/recollect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorRepository(t *testing.T) {
	storagetest.RunVectorRepositoryTests(t, func(t *testing.T) storage.VectorMemoryRepository {
		repo, err := chromemdb.NewVectorRepository("")
		require.NoError(t, err)
		return repo
	})
}

func TestVectorRepository_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	start := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	repo, err := chromemdb.NewVectorRepository(dir)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, types.VectorRecord{
		SourceRecordID: "clip-1",
		Embedding:      []float32{0.2, 0.8, 0.1},
		TimeSpan:       types.NewTimeSpan(start, 30*time.Second),
		Modality:       types.ModalityVideo,
	}))

	reopened, err := chromemdb.NewVectorRepository(dir)
	require.NoError(t, err)
	got, err := reopened.TopK(ctx, []float32{0.2, 0.8, 0.1}, 5, 0.3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "clip-1", got[0].Record.SourceRecordID)
	assert.Equal(t, types.ModalityVideo, got[0].Record.Modality)
	assert.True(t, got[0].Record.TimeSpan.Start.Equal(start))
	assert.True(t, got[0].Record.TimeSpan.End.Equal(start.Add(30*time.Second)))
}

func TestVectorRepository_ZeroVectorNeverStored(t *testing.T) {
	repo, err := chromemdb.NewVectorRepository("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, types.VectorRecord{SourceRecordID: "z", Embedding: []float32{1, 0}}))
	require.NoError(t, repo.Append(ctx, types.VectorRecord{SourceRecordID: "z", Embedding: []float32{0, 0}}))

	got, err := repo.TopK(ctx, []float32{1, 0}, 5, -1)
	require.NoError(t, err)
	assert.Empty(t, got, "the zero vector replaces the old slot and never matches")
}
