package repository

import (
	"context"
	"fmt"

	"github.com/pirelike/hlsvault/internal/models"
	"gorm.io/gorm"
)

// subtitleTrackRepo implements SubtitleTrackRepository using GORM.
type subtitleTrackRepo struct {
	db *gorm.DB
}

// NewSubtitleTrackRepository creates a new SubtitleTrackRepository.
func NewSubtitleTrackRepository(db *gorm.DB) *subtitleTrackRepo {
	return &subtitleTrackRepo{db: db}
}

// CreateBatch inserts multiple subtitle tracks for a video in a single call.
func (r *subtitleTrackRepo) CreateBatch(ctx context.Context, tracks []*models.SubtitleTrack) error {
	if len(tracks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&tracks).Error; err != nil {
		return fmt.Errorf("creating subtitle track batch: %w", err)
	}
	return nil
}

// GetByKey retrieves a single subtitle track by its (video_id, track_index) key.
func (r *subtitleTrackRepo) GetByKey(ctx context.Context, videoID string, trackIndex int) (*models.SubtitleTrack, error) {
	var track models.SubtitleTrack
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND track_index = ?", videoID, trackIndex).
		First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting subtitle track by key: %w", err)
	}
	return &track, nil
}

// GetByVideoID retrieves all subtitle tracks for a video, ordered by track_index.
func (r *subtitleTrackRepo) GetByVideoID(ctx context.Context, videoID string) ([]*models.SubtitleTrack, error) {
	var tracks []*models.SubtitleTrack
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Order("track_index ASC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("getting subtitle tracks by video id: %w", err)
	}
	return tracks, nil
}

// GetByLanguage retrieves the subtitle track for a video in a given language.
func (r *subtitleTrackRepo) GetByLanguage(ctx context.Context, videoID, language string) (*models.SubtitleTrack, error) {
	var track models.SubtitleTrack
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND language = ?", videoID, language).
		First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting subtitle track by language: %w", err)
	}
	return &track, nil
}

// DeleteByVideoID deletes all subtitle tracks belonging to a video.
func (r *subtitleTrackRepo) DeleteByVideoID(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&models.SubtitleTrack{}).Error; err != nil {
		return fmt.Errorf("deleting subtitle tracks by video id: %w", err)
	}
	return nil
}

// Ensure subtitleTrackRepo implements SubtitleTrackRepository at compile time.
var _ SubtitleTrackRepository = (*subtitleTrackRepo)(nil)
