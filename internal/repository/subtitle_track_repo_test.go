package repository

import (
	"context"
	"testing"

	"github.com/pirelike/hlsvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSubtitleTrack(videoID string, index int, language string) *models.SubtitleTrack {
	return &models.SubtitleTrack{
		VideoID:      videoID,
		TrackIndex:   index,
		Language:     language,
		Title:        language + " subtitles",
		Codec:        "webvtt",
		AccountID:    "acct-a",
		RemoteHandle: "handle-sub-" + language,
	}
}

func TestSubtitleTrackRepo_CreateBatch(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSubtitleTrackRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	tracks := []*models.SubtitleTrack{
		sampleSubtitleTrack("movie-2024", 0, "eng"),
		sampleSubtitleTrack("movie-2024", 1, "fre"),
	}
	require.NoError(t, repo.CreateBatch(ctx, tracks))

	found, err := repo.GetByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestSubtitleTrackRepo_GetByKey(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSubtitleTrackRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.SubtitleTrack{
		sampleSubtitleTrack("movie-2024", 0, "eng"),
	}))

	t.Run("found", func(t *testing.T) {
		track, err := repo.GetByKey(ctx, "movie-2024", 0)
		require.NoError(t, err)
		require.NotNil(t, track)
		assert.Equal(t, "eng", track.Language)
	})

	t.Run("not found", func(t *testing.T) {
		track, err := repo.GetByKey(ctx, "movie-2024", 9)
		require.NoError(t, err)
		assert.Nil(t, track)
	})
}

func TestSubtitleTrackRepo_GetByLanguage(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSubtitleTrackRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.SubtitleTrack{
		sampleSubtitleTrack("movie-2024", 0, "eng"),
		sampleSubtitleTrack("movie-2024", 1, "fre"),
	}))

	track, err := repo.GetByLanguage(ctx, "movie-2024", "fre")
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, 1, track.TrackIndex)
}

func TestSubtitleTrackRepo_DeleteByVideoID(t *testing.T) {
	db := setupVideoTestDB(t)
	videoRepo := NewVideoRepository(db)
	repo := NewSubtitleTrackRepository(db)
	ctx := context.Background()

	require.NoError(t, videoRepo.Create(ctx, sampleVideo("movie-2024")))
	require.NoError(t, repo.CreateBatch(ctx, []*models.SubtitleTrack{
		sampleSubtitleTrack("movie-2024", 0, "eng"),
	}))
	require.NoError(t, repo.DeleteByVideoID(ctx, "movie-2024"))

	found, err := repo.GetByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	assert.Empty(t, found)
}
