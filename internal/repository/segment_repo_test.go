package repository

import (
	"context"
	"testing"

	"github.com/pirelike/hlsvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentRepo_CreateBatch(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))

	segments := []*models.Segment{
		{VideoID: "movie-2024", Ordinal: 0, Filename: "seg0.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-a", RemoteHandle: "handle-0"},
		{VideoID: "movie-2024", Ordinal: 1, Filename: "seg1.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-b", RemoteHandle: "handle-1"},
	}
	require.NoError(t, repo.CreateBatch(ctx, segments))

	count, err := repo.CountByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSegmentRepo_CreateBatch_Empty(t *testing.T) {
	db := setupVideoTestDB(t)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, nil))
}

func TestSegmentRepo_GetByKey(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.Segment{
		{VideoID: "movie-2024", Ordinal: 3, Filename: "seg3.ts", DurationS: 6, SizeBytes: 2048, AccountID: "acct-a", RemoteHandle: "handle-3"},
	}))

	t.Run("found", func(t *testing.T) {
		seg, err := repo.GetByKey(ctx, "movie-2024", 3)
		require.NoError(t, err)
		require.NotNil(t, seg)
		assert.Equal(t, "handle-3", seg.RemoteHandle)
	})

	t.Run("not found", func(t *testing.T) {
		seg, err := repo.GetByKey(ctx, "movie-2024", 99)
		require.NoError(t, err)
		assert.Nil(t, seg)
	})
}

func TestSegmentRepo_GetByVideoID_Ordered(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.Segment{
		{VideoID: "movie-2024", Ordinal: 2, Filename: "seg2.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-a", RemoteHandle: "handle-2"},
		{VideoID: "movie-2024", Ordinal: 0, Filename: "seg0.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-a", RemoteHandle: "handle-0"},
		{VideoID: "movie-2024", Ordinal: 1, Filename: "seg1.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-a", RemoteHandle: "handle-1"},
	}))

	segments, err := repo.GetByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, 0, segments[0].Ordinal)
	assert.Equal(t, 1, segments[1].Ordinal)
	assert.Equal(t, 2, segments[2].Ordinal)
}

func TestSegmentRepo_DeleteByVideoID(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSegmentRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.Segment{
		{VideoID: "movie-2024", Ordinal: 0, Filename: "seg0.ts", DurationS: 6, SizeBytes: 1024, AccountID: "acct-a", RemoteHandle: "handle-0"},
	}))

	require.NoError(t, repo.DeleteByVideoID(ctx, "movie-2024"))

	count, err := repo.CountByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
