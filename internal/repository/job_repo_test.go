package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pirelike/hlsvault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Job{}))
	return db
}

func TestJobRepo_Create(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024"}
	require.NoError(t, repo.Create(ctx, job))
	assert.False(t, job.ID.IsZero())
}

func TestJobRepo_GetByID(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024"}
	require.NoError(t, repo.Create(ctx, job))

	t.Run("found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "movie-2024", found.VideoID)
	})

	t.Run("not found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, models.NewULID())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestJobRepo_GetByVideoID(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024"}))
	require.NoError(t, repo.Create(ctx, &models.Job{Type: models.JobTypeDelete, VideoID: "movie-2024"}))
	require.NoError(t, repo.Create(ctx, &models.Job{Type: models.JobTypeIngest, VideoID: "other-movie"}))

	jobs, err := repo.GetByVideoID(ctx, "movie-2024")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestJobRepo_GetIncomplete(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	pending := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024", Status: models.JobStatusPending}
	require.NoError(t, repo.Create(ctx, pending))

	running := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2025"}
	running.MarkRunning()
	require.NoError(t, repo.Create(ctx, running))

	completed := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2026"}
	completed.MarkRunning()
	completed.MarkCompleted()
	require.NoError(t, repo.Create(ctx, completed))

	incomplete, err := repo.GetIncomplete(ctx)
	require.NoError(t, err)
	assert.Len(t, incomplete, 2)
}

func TestJobRepo_Update(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024"}
	require.NoError(t, repo.Create(ctx, job))

	job.MarkRunning()
	require.NoError(t, repo.Update(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.IsRunning())
}

func TestJobRepo_DeleteCompletedBefore(t *testing.T) {
	db := setupJobTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()

	old := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2024"}
	old.MarkRunning()
	old.MarkCompleted()
	require.NoError(t, repo.Create(ctx, old))

	cutoff := time.Now().Add(1 * time.Hour)
	n, err := repo.DeleteCompletedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
