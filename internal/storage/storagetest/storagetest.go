// Package storagetest holds behavioural tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/recollect/internal/storage"
	"github.com/scrypster/recollect/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

// NewPhoto builds a valid photo record captured offset after a fixed base time.
func NewPhoto(id string, offset time.Duration) *types.MediaRecord {
	return &types.MediaRecord{
		ID:         id,
		UserID:     "user-1",
		Modality:   types.ModalityPhoto,
		CapturedAt: base.Add(offset),
		ContentURL: "https://cdn.example.com/" + id + ".jpg",
		Status:     types.StatusPending,
		UpdatedAt:  base.Add(offset),
	}
}

// RunMediaRepositoryTests exercises a MediaRepository implementation.
func RunMediaRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.MediaRepository) {
	ctx := context.Background()

	t.Run("StoreAndGet", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewPhoto("m1", 0)
		require.NoError(t, repo.Store(ctx, rec))

		got, err := repo.Get(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, types.ModalityPhoto, got.Modality)
		assert.Equal(t, rec.ContentURL, got.ContentURL)
		assert.True(t, rec.CapturedAt.Equal(got.CapturedAt))
		assert.Equal(t, types.StatusPending, got.Status)
	})

	t.Run("RejectsInvalidSource", func(t *testing.T) {
		repo := newRepo(t)
		rec := NewPhoto("m1", 0)
		rec.Content = []byte("both")
		err := repo.Store(ctx, rec)
		assert.True(t, errors.Is(err, storage.ErrInvalidInput))

		rec = NewPhoto("", 0)
		assert.True(t, errors.Is(repo.Store(ctx, rec), storage.ErrInvalidInput))
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "nope")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("UpdateAnalysisOverwrites", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Store(ctx, NewPhoto("m1", 0)))

		first := storage.AnalysisUpdate{
			Description: "a red backpack on a chair",
			Transcript:  "hello",
			TranscriptSegments: []types.TranscriptSegment{
				{Text: "hello", Start: 0, End: 1.5},
			},
			Embedding:   []float32{0.1, 0.2},
			ObjectCount: 2,
			Status:      types.StatusCompleted,
			AnalyzedAt:  base.Add(time.Hour),
		}
		require.NoError(t, repo.UpdateAnalysis(ctx, "m1", first))

		got, err := repo.Get(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, first.Description, got.Description)
		assert.Equal(t, "hello", got.Transcript)
		require.Len(t, got.TranscriptSegments, 1)
		assert.Equal(t, 1.5, got.TranscriptSegments[0].End)
		assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
		assert.Equal(t, 2, got.ObjectCount)
		assert.Equal(t, types.StatusCompleted, got.Status)
		require.NotNil(t, got.AnalyzedAt)

		second := storage.AnalysisUpdate{Status: types.StatusFailed, AnalysisError: "no description", AnalyzedAt: base.Add(2 * time.Hour)}
		require.NoError(t, repo.UpdateAnalysis(ctx, "m1", second))
		got, err = repo.Get(ctx, "m1")
		require.NoError(t, err)
		assert.Empty(t, got.Description, "derived fields are overwritten on every pass")
		assert.Empty(t, got.Transcript)
		assert.Empty(t, got.Embedding)
		assert.Equal(t, "no description", got.AnalysisError)

		assert.True(t, errors.Is(repo.UpdateAnalysis(ctx, "missing", first), storage.ErrNotFound))
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Store(ctx, NewPhoto("m1", 0)))
		require.NoError(t, repo.UpdateStatus(ctx, "m1", types.StatusProcessing))
		got, err := repo.Get(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, types.StatusProcessing, got.Status)
		assert.True(t, errors.Is(repo.UpdateStatus(ctx, "missing", types.StatusFailed), storage.ErrNotFound))
	})

	t.Run("ListFiltersAndOrders", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, repo.Store(ctx, NewPhoto(fmt.Sprintf("m%d", i), time.Duration(i)*time.Hour)))
		}
		other := NewPhoto("other", 10*time.Hour)
		other.UserID = "user-2"
		require.NoError(t, repo.Store(ctx, other))
		require.NoError(t, repo.UpdateAnalysis(ctx, "m2", storage.AnalysisUpdate{
			Description: "keys on the table", Status: types.StatusCompleted, AnalyzedAt: base,
		}))

		page, err := repo.List(ctx, storage.ListOptions{UserID: "user-1", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "m4", page.Items[0].ID, "newest first")
		assert.True(t, page.HasMore)

		described, err := repo.List(ctx, storage.ListOptions{DescribedOnly: true})
		require.NoError(t, err)
		require.Len(t, described.Items, 1)
		assert.Equal(t, "m2", described.Items[0].ID)

		pending, err := repo.List(ctx, storage.ListOptions{Statuses: []types.ProcessingStatus{types.StatusPending}})
		require.NoError(t, err)
		assert.Equal(t, 5, pending.Total)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Store(ctx, NewPhoto("m1", 0)))
		require.NoError(t, repo.Delete(ctx, "m1"))
		_, err := repo.Get(ctx, "m1")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.True(t, errors.Is(repo.Delete(ctx, "m1"), storage.ErrNotFound))
	})
}

// RunObjectRepositoryTests exercises an ObjectMemoryRepository implementation.
func RunObjectRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.ObjectMemoryRepository) {
	ctx := context.Background()

	t.Run("NewerWins", func(t *testing.T) {
		repo := newRepo(t)
		applied, err := repo.Upsert(ctx, types.ObjectSighting{Label: "Keys", SourceRecordID: "r1", ConfirmedAt: base, BaseConfidence: 0.9, ConfirmationType: types.ConfirmedVisual})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.Upsert(ctx, types.ObjectSighting{Label: " keys ", SourceRecordID: "r2", ConfirmedAt: base.Add(time.Hour), BaseConfidence: 0.6, ConfirmationType: types.ConfirmedInferred})
		require.NoError(t, err)
		assert.True(t, applied)

		got, err := repo.Get(ctx, "KEYS")
		require.NoError(t, err)
		assert.Equal(t, "keys", got.Label)
		assert.Equal(t, "r2", got.SourceRecordID)
		assert.Equal(t, 0.6, got.BaseConfidence)
		assert.Equal(t, types.ConfirmedInferred, got.ConfirmationType)
	})

	t.Run("OlderIsIgnored", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(ctx, types.ObjectSighting{Label: "wallet", SourceRecordID: "new", ConfirmedAt: base.Add(time.Hour), BaseConfidence: 0.9})
		require.NoError(t, err)

		applied, err := repo.Upsert(ctx, types.ObjectSighting{Label: "wallet", SourceRecordID: "old", ConfirmedAt: base, BaseConfidence: 0.9})
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := repo.Get(ctx, "wallet")
		require.NoError(t, err)
		assert.Equal(t, "new", got.SourceRecordID)
	})

	t.Run("TieLaterWriteWins", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Upsert(ctx, types.ObjectSighting{Label: "mug", SourceRecordID: "a", ConfirmedAt: base, BaseConfidence: 0.5})
		require.NoError(t, err)
		applied, err := repo.Upsert(ctx, types.ObjectSighting{Label: "mug", SourceRecordID: "b", ConfirmedAt: base, BaseConfidence: 0.5})
		require.NoError(t, err)
		assert.True(t, applied)
		got, err := repo.Get(ctx, "mug")
		require.NoError(t, err)
		assert.Equal(t, "b", got.SourceRecordID)
	})

	t.Run("InterleavedUpsertsKeepLatest", func(t *testing.T) {
		repo := newRepo(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.Upsert(ctx, types.ObjectSighting{
					Label:          "umbrella",
					SourceRecordID: fmt.Sprintf("r%02d", i),
					ConfirmedAt:    base.Add(time.Duration(i) * time.Minute),
					BaseConfidence: 0.8,
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := repo.Get(ctx, "umbrella")
		require.NoError(t, err)
		assert.Equal(t, "r19", got.SourceRecordID)
		assert.True(t, got.ConfirmedAt.Equal(base.Add(19*time.Minute)))
	})

	t.Run("MissingAndInvalid", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "nothing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		_, err = repo.Upsert(ctx, types.ObjectSighting{Label: "   "})
		assert.True(t, errors.Is(err, storage.ErrInvalidInput))
	})

	t.Run("DeleteBySource", func(t *testing.T) {
		repo := newRepo(t)
		_, _ = repo.Upsert(ctx, types.ObjectSighting{Label: "keys", SourceRecordID: "r1", ConfirmedAt: base})
		_, _ = repo.Upsert(ctx, types.ObjectSighting{Label: "phone", SourceRecordID: "r1", ConfirmedAt: base})
		_, _ = repo.Upsert(ctx, types.ObjectSighting{Label: "wallet", SourceRecordID: "r2", ConfirmedAt: base})

		n, err := repo.DeleteBySource(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		_, err = repo.Get(ctx, "keys")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		_, err = repo.Get(ctx, "wallet")
		assert.NoError(t, err)
	})
}

// RunVectorRepositoryTests exercises a VectorMemoryRepository implementation.
func RunVectorRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.VectorMemoryRepository) {
	ctx := context.Background()

	vec := func(id string, start time.Time, e ...float32) types.VectorRecord {
		return types.VectorRecord{
			SourceRecordID: id,
			Embedding:      e,
			TimeSpan:       types.TimeSpan{Start: start, End: start},
			Modality:       types.ModalityPhoto,
		}
	}

	t.Run("ThresholdFiltersOrthogonal", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Append(ctx, vec("A", base, 1, 0)))
		require.NoError(t, repo.Append(ctx, vec("B", base, 0, 1)))

		got, err := repo.TopK(ctx, []float32{0.9, 0.1}, 20, 0.3)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "A", got[0].Record.SourceRecordID)
		assert.InDelta(t, 0.9939, got[0].Similarity, 1e-3)
	})

	t.Run("AppendReplacesSlot", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Append(ctx, vec("A", base, 1, 0)))
		require.NoError(t, repo.Append(ctx, vec("A", base, 0, 1)))

		got, err := repo.TopK(ctx, []float32{0, 1}, 10, 0.3)
		require.NoError(t, err)
		require.Len(t, got, 1, "re-analysis must not duplicate vector records")
		assert.Equal(t, "A", got[0].Record.SourceRecordID)

		got, err = repo.TopK(ctx, []float32{1, 0}, 10, 0.3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("TruncatesAndPrefersNewerOnTie", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Append(ctx, vec("old", base, 1, 1)))
		require.NoError(t, repo.Append(ctx, vec("new", base.Add(time.Hour), 1, 1)))
		require.NoError(t, repo.Append(ctx, vec("far", base, 1, -0.2)))

		got, err := repo.TopK(ctx, []float32{1, 1}, 2, 0.3)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].Record.SourceRecordID)
		assert.Equal(t, "old", got[1].Record.SourceRecordID)
	})

	t.Run("MismatchedDimensionNeverMatches", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Append(ctx, vec("three", base, 1, 0, 0)))
		require.NoError(t, repo.Append(ctx, vec("two", base, 1, 0)))

		got, err := repo.TopK(ctx, []float32{1, 0}, 10, -1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "two", got[0].Record.SourceRecordID)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Append(ctx, vec("A", base, 1, 0)))
		require.NoError(t, repo.Delete(ctx, "A"))
		require.NoError(t, repo.Delete(ctx, "A"))
		got, err := repo.TopK(ctx, []float32{1, 0}, 10, 0.3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
