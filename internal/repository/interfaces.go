// Package repository defines data access interfaces for hlsvault's catalog
// entities. All database access goes through these interfaces, enabling
// easy testing and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/pirelike/hlsvault/internal/models"
)

// VideoRepository defines operations for video catalog persistence.
type VideoRepository interface {
	// Create creates a new video row.
	Create(ctx context.Context, video *models.Video) error
	// GetByID retrieves a video by its video_id.
	GetByID(ctx context.Context, videoID string) (*models.Video, error)
	// GetByIDWithChildren retrieves a video along with its segments and
	// subtitle tracks, ordered by ordinal/track_index.
	GetByIDWithChildren(ctx context.Context, videoID string) (*models.Video, error)
	// GetAll retrieves all videos ordered by creation time, most recent first.
	GetAll(ctx context.Context) ([]*models.Video, error)
	// GetByStatus retrieves all videos with the given status.
	GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error)
	// Update persists changes to an existing video.
	Update(ctx context.Context, video *models.Video) error
	// UpdateStatus updates only the status and last_error fields.
	UpdateStatus(ctx context.Context, videoID string, status models.VideoStatus, lastError string) error
	// Delete removes a video by video_id. Segments and subtitle tracks are
	// cascade-deleted by the foreign key constraint.
	Delete(ctx context.Context, videoID string) error
	// Exists reports whether a video with the given video_id exists.
	Exists(ctx context.Context, videoID string) (bool, error)
}

// SegmentRepository defines operations for segment persistence.
type SegmentRepository interface {
	// CreateBatch inserts multiple segments for a video in a single call.
	CreateBatch(ctx context.Context, segments []*models.Segment) error
	// GetByKey retrieves a single segment by its (video_id, ordinal) key.
	GetByKey(ctx context.Context, videoID string, ordinal int) (*models.Segment, error)
	// GetByVideoID retrieves all segments for a video, ordered by ordinal.
	GetByVideoID(ctx context.Context, videoID string) ([]*models.Segment, error)
	// CountByVideoID returns the number of segments recorded for a video.
	CountByVideoID(ctx context.Context, videoID string) (int64, error)
	// DeleteByVideoID deletes all segments belonging to a video.
	DeleteByVideoID(ctx context.Context, videoID string) error
}

// SubtitleTrackRepository defines operations for subtitle track persistence.
type SubtitleTrackRepository interface {
	// CreateBatch inserts multiple subtitle tracks for a video in a single call.
	CreateBatch(ctx context.Context, tracks []*models.SubtitleTrack) error
	// GetByKey retrieves a single subtitle track by its (video_id, track_index) key.
	GetByKey(ctx context.Context, videoID string, trackIndex int) (*models.SubtitleTrack, error)
	// GetByVideoID retrieves all subtitle tracks for a video, ordered by track_index.
	GetByVideoID(ctx context.Context, videoID string) ([]*models.SubtitleTrack, error)
	// GetByLanguage retrieves the subtitle track for a video in a given language.
	GetByLanguage(ctx context.Context, videoID, language string) (*models.SubtitleTrack, error)
	// DeleteByVideoID deletes all subtitle tracks belonging to a video.
	DeleteByVideoID(ctx context.Context, videoID string) error
}

// JobRepository defines operations for ingest/delete job persistence.
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs, most recent first.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetByVideoID retrieves all jobs for a given video_id, most recent first.
	GetByVideoID(ctx context.Context, videoID string) ([]*models.Job, error)
	// GetIncomplete retrieves jobs that are pending or running — used on
	// startup to resume interrupted ingests/deletes.
	GetIncomplete(ctx context.Context) ([]*models.Job, error)
	// Update persists changes to an existing job.
	Update(ctx context.Context, job *models.Job) error
	// DeleteCompletedBefore deletes finished jobs older than the given time,
	// returning the number of rows removed.
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}
