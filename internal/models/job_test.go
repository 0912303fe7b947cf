package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Validate(t *testing.T) {
	t.Run("valid job", func(t *testing.T) {
		j := &Job{Type: JobTypeIngest, VideoID: "movie-2024"}
		require.NoError(t, j.Validate())
	})

	t.Run("missing type", func(t *testing.T) {
		j := &Job{VideoID: "movie-2024"}
		assert.Error(t, j.Validate())
	})

	t.Run("missing video id", func(t *testing.T) {
		j := &Job{Type: JobTypeDelete}
		assert.ErrorIs(t, j.Validate(), ErrVideoIDRequired)
	})
}

func TestJob_StateTransitions(t *testing.T) {
	j := &Job{Type: JobTypeIngest, VideoID: "movie-2024", Status: JobStatusPending}
	assert.True(t, j.IsPending())

	j.MarkRunning()
	assert.True(t, j.IsRunning())
	require.NotNil(t, j.StartedAt)

	j.MarkCompleted()
	assert.True(t, j.IsFinished())
	assert.Equal(t, JobStatusCompleted, j.Status)
	assert.Empty(t, j.LastError)
}

func TestJob_MarkFailed(t *testing.T) {
	j := &Job{Type: JobTypeIngest, VideoID: "movie-2024"}
	j.MarkRunning()
	j.MarkFailed(errors.New("boom"))

	assert.True(t, j.IsFinished())
	assert.Equal(t, JobStatusFailed, j.Status)
	assert.Equal(t, "boom", j.LastError)
}
