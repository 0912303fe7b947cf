package repository

import (
	"context"
	"fmt"

	"github.com/pirelike/hlsvault/internal/models"
	"gorm.io/gorm"
)

// videoRepo implements VideoRepository using GORM.
type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *videoRepo {
	return &videoRepo{db: db}
}

// Create creates a new video row.
func (r *videoRepo) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

// GetByID retrieves a video by its video_id.
func (r *videoRepo) GetByID(ctx context.Context, videoID string) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&video).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video by id: %w", err)
	}
	return &video, nil
}

// GetByIDWithChildren retrieves a video along with its segments and
// subtitle tracks, ordered by ordinal/track_index.
func (r *videoRepo) GetByIDWithChildren(ctx context.Context, videoID string) (*models.Video, error) {
	var video models.Video
	err := r.db.WithContext(ctx).
		Preload("Segments", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("ordinal ASC")
		}).
		Preload("SubtitleTracks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("track_index ASC")
		}).
		Where("video_id = ?", videoID).
		First(&video).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video with children: %w", err)
	}
	return &video, nil
}

// GetAll retrieves all videos ordered by creation time, most recent first.
func (r *videoRepo) GetAll(ctx context.Context) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting all videos: %w", err)
	}
	return videos, nil
}

// GetByStatus retrieves all videos with the given status.
func (r *videoRepo) GetByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error) {
	var videos []*models.Video
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, fmt.Errorf("getting videos by status: %w", err)
	}
	return videos, nil
}

// Update persists changes to an existing video.
func (r *videoRepo) Update(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Save(video).Error; err != nil {
		return fmt.Errorf("updating video: %w", err)
	}
	return nil
}

// UpdateStatus updates only the status and last_error fields.
func (r *videoRepo) UpdateStatus(ctx context.Context, videoID string, status models.VideoStatus, lastError string) error {
	updates := map[string]any{
		"status":     status,
		"last_error": lastError,
	}
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("video_id = ?", videoID).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating video status: %w", err)
	}
	return nil
}

// Delete removes a video by video_id. Segments and subtitle tracks are
// cascade-deleted by the foreign key constraint.
func (r *videoRepo) Delete(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("video_id = ?", videoID).Delete(&models.Video{}).Error; err != nil {
		return fmt.Errorf("deleting video: %w", err)
	}
	return nil
}

// Exists reports whether a video with the given video_id exists.
func (r *videoRepo) Exists(ctx context.Context, videoID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Video{}).Where("video_id = ?", videoID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking video existence: %w", err)
	}
	return count > 0, nil
}

// Ensure videoRepo implements VideoRepository at compile time.
var _ VideoRepository = (*videoRepo)(nil)
