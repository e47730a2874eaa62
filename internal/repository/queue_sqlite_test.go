package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

func TestQueueInsertAndGet(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	entry := &model.RelistQueueEntry{
		LocalID:       7,
		Status:        model.QueuePending,
		JitteredTitle: "Vintage jacket ",
		RelistCount:   2,
	}
	require.NoError(t, repo.Insert(ctx, entry))
	assert.False(t, entry.EnqueuedAt.IsZero(), "insert should stamp enqueued_at")

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.QueuePending, got.Status)
	assert.Equal(t, "Vintage jacket ", got.JitteredTitle)
	assert.Equal(t, 2, got.RelistCount)

	missing, err := repo.Get(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQueueNextPendingOrder(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []int64{10, 20, 30} {
		require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{
			LocalID:    id,
			Status:     model.QueuePending,
			EnqueuedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	next, err := repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(10), next.LocalID)

	// An in-flight head leaves the next pending entry in line.
	require.NoError(t, repo.UpdateStatus(ctx, 10, model.QueueMutating, ""))
	next, err = repo.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int64(20), next.LocalID)

	require.NoError(t, repo.Delete(ctx, 20))
	require.NoError(t, repo.Delete(ctx, 30))
	next, err = repo.NextPending(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestQueueListOrder(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: 2, Status: model.QueuePending, EnqueuedAt: base.Add(time.Minute),
	}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: 1, Status: model.QueueError, Error: "boom", EnqueuedAt: base,
	}))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].LocalID)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, int64(2), entries[1].LocalID)
}

func TestQueueUpdateStatus(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: 1, Status: model.QueuePending,
	}))

	require.NoError(t, repo.UpdateStatus(ctx, 1, model.QueueError, "upload failed"))
	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.QueueError, got.Status)
	assert.Equal(t, "upload failed", got.Error)

	err = repo.UpdateStatus(ctx, 99, model.QueueDone, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestQueueUpdateMutation(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{
		LocalID: 1, Status: model.QueueMutating,
	}))

	require.NoError(t, repo.UpdateMutation(ctx, 1, "title ", "/data/thumbnails/x.jpg"))
	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "title ", got.JitteredTitle)
	assert.Equal(t, "/data/thumbnails/x.jpg", got.MutatedThumbnail)
}

func TestQueueDeletePending(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 1, Status: model.QueuePending}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 2, Status: model.QueuePending}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 3, Status: model.QueueError, Error: "x"}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 4, Status: model.QueueUploading}))

	removed, err := repo.DeletePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestQueueResetInFlight(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 1, Status: model.QueuePending}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 2, Status: model.QueueMutating}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 3, Status: model.QueueUploading}))

	reset, err := repo.ResetInFlight(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reset)

	pending, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.QueuePending, pending.Status)

	for _, id := range []int64{2, 3} {
		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.QueueError, got.Status)
		assert.Equal(t, "interrupted by restart", got.Error)
	}
}

func TestQueueClaim(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 1, Status: model.QueuePending}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 2, Status: model.QueueMutating}))

	claimed, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	assert.True(t, claimed)
	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.QueueMutating, got.Status)

	// A second claim, an in-flight entry and a missing row all lose.
	claimed, err = repo.Claim(ctx, 1)
	require.NoError(t, err)
	assert.False(t, claimed)
	claimed, err = repo.Claim(ctx, 2)
	require.NoError(t, err)
	assert.False(t, claimed)
	claimed, err = repo.Claim(ctx, 99)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestQueueDeleteIfPending(t *testing.T) {
	repo := NewSQLiteQueueRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 1, Status: model.QueuePending}))
	require.NoError(t, repo.Insert(ctx, &model.RelistQueueEntry{LocalID: 2, Status: model.QueueUploading}))

	deleted, err := repo.DeleteIfPending(ctx, 1)
	require.NoError(t, err)
	assert.True(t, deleted)
	gone, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// An in-flight entry stays put.
	deleted, err = repo.DeleteIfPending(ctx, 2)
	require.NoError(t, err)
	assert.False(t, deleted)
	kept, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, model.QueueUploading, kept.Status)
}
