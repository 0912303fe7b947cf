package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideo_Validate(t *testing.T) {
	t.Run("valid video", func(t *testing.T) {
		v := &Video{VideoID: "movie-2024", SourceFilename: "movie.mkv", Status: VideoStatusProcessing}
		require.NoError(t, v.Validate())
	})

	t.Run("missing video_id", func(t *testing.T) {
		v := &Video{SourceFilename: "movie.mkv", Status: VideoStatusProcessing}
		assert.ErrorIs(t, v.Validate(), ErrVideoIDRequired)
	})

	t.Run("missing source filename", func(t *testing.T) {
		v := &Video{VideoID: "movie-2024", Status: VideoStatusProcessing}
		assert.ErrorIs(t, v.Validate(), ErrSourceFilenameRequired)
	})

	t.Run("invalid status", func(t *testing.T) {
		v := &Video{VideoID: "movie-2024", SourceFilename: "movie.mkv", Status: "bogus"}
		assert.ErrorIs(t, v.Validate(), ErrInvalidVideoStatus)
	})
}

func TestVideo_IsStreamable(t *testing.T) {
	tests := []struct {
		status   VideoStatus
		expected bool
	}{
		{VideoStatusProcessing, false},
		{VideoStatusActive, true},
		{VideoStatusError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			v := &Video{Status: tt.status}
			assert.Equal(t, tt.expected, v.IsStreamable())
		})
	}
}

func TestVideo_BeforeCreate_StampsTimestamps(t *testing.T) {
	v := &Video{VideoID: "movie-2024", SourceFilename: "movie.mkv", Status: VideoStatusProcessing}
	require.NoError(t, v.BeforeCreate(nil))
	assert.False(t, v.CreatedAt.IsZero())
	assert.False(t, v.UpdatedAt.IsZero())
}
