package repository

import (
	"context"
	"fmt"

	"github.com/pirelike/hlsvault/internal/models"
	"gorm.io/gorm"
)

// segmentRepo implements SegmentRepository using GORM.
type segmentRepo struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(db *gorm.DB) *segmentRepo {
	return &segmentRepo{db: db}
}

// CreateBatch inserts multiple segments for a video in a single call.
func (r *segmentRepo) CreateBatch(ctx context.Context, segments []*models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&segments).Error; err != nil {
		return fmt.Errorf("creating segment batch: %w", err)
	}
	return nil
}

// GetByKey retrieves a single segment by its (video_id, ordinal) key.
func (r *segmentRepo) GetByKey(ctx context.Context, videoID string, ordinal int) (*models.Segment, error) {
	var segment models.Segment
	err := r.db.WithContext(ctx).
		Where("video_id = ? AND ordinal = ?", videoID, ordinal).
		First(&segment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting segment by key: %w", err)
	}
	return &segment, nil
}

// GetByVideoID retrieves all segments for a video, ordered by ordinal.
func (r *segmentRepo) GetByVideoID(ctx context.Context, videoID string) ([]*models.Segment, error) {
	var segments []*models.Segment
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Order("ordinal ASC").Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("getting segments by video id: %w", err)
	}
	return segments, nil
}

// CountByVideoID returns the number of segments recorded for a video.
func (r *segmentRepo) CountByVideoID(ctx context.Context, videoID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Segment{}).Where("video_id = ?", videoID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting segments: %w", err)
	}
	return count, nil
}

// DeleteByVideoID deletes all segments belonging to a video.
func (r *segmentRepo) DeleteByVideoID(ctx context.Context, videoID string) error {
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&models.Segment{}).Error; err != nil {
		return fmt.Errorf("deleting segments by video id: %w", err)
	}
	return nil
}

// Ensure segmentRepo implements SegmentRepository at compile time.
var _ SegmentRepository = (*segmentRepo)(nil)
