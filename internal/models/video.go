package models

import (
	"gorm.io/gorm"
)

// VideoStatus represents the lifecycle state of a catalog video.
type VideoStatus string

const (
	// VideoStatusProcessing indicates ingest is in progress; invisible to
	// playlist generation.
	VideoStatusProcessing VideoStatus = "processing"
	// VideoStatusActive indicates the video committed successfully and is
	// eligible for streaming.
	VideoStatusActive VideoStatus = "active"
	// VideoStatusError indicates ingest failed unrecoverably. Retained for
	// diagnostics.
	VideoStatusError VideoStatus = "error"
)

// Video is the catalog row for one ingested video. video_id is a stable
// textual identifier derived from the sanitized source filename with a
// collision suffix, not a generated surrogate key: it appears in playlist
// and segment URIs and stays fixed for the life of the row. Re-ingesting a
// file whose base name is already in the catalog yields a new suffixed ID.
type Video struct {
	VideoID string `gorm:"primaryKey;column:video_id;size:255" json:"video_id"`

	SourceFilename string `gorm:"not null;size:1024" json:"source_filename"`
	Container      string `gorm:"size:50" json:"container"`
	VideoCodec     string `gorm:"size:50" json:"video_codec"`
	AudioCodec     string `gorm:"size:50" json:"audio_codec"`
	DurationS      float64 `gorm:"column:duration_s" json:"duration_s"`
	TotalSegments  int    `gorm:"column:total_segments" json:"total_segments"`
	TotalBytes     int64  `gorm:"column:total_bytes" json:"total_bytes"`

	Status VideoStatus `gorm:"not null;default:'processing';size:20;index" json:"status"`

	// LastError records the reason a video transitioned to error, if any.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	CreatedAt Time `json:"created_at"`
	UpdatedAt Time `json:"updated_at"`

	Segments       []Segment       `gorm:"foreignKey:VideoID;references:VideoID;constraint:OnDelete:CASCADE" json:"-"`
	SubtitleTracks []SubtitleTrack `gorm:"foreignKey:VideoID;references:VideoID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Video.
func (Video) TableName() string {
	return "videos"
}

// Validate performs field-level validation independent of database state.
func (v *Video) Validate() error {
	if v.VideoID == "" {
		return ErrVideoIDRequired
	}
	if v.SourceFilename == "" {
		return ErrSourceFilenameRequired
	}
	switch v.Status {
	case VideoStatusProcessing, VideoStatusActive, VideoStatusError:
	default:
		return ErrInvalidVideoStatus
	}
	return nil
}

// BeforeCreate validates the row and stamps timestamps.
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	now := Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	return v.Validate()
}

// BeforeUpdate stamps the updated-at timestamp and re-validates.
func (v *Video) BeforeUpdate(tx *gorm.DB) error {
	v.UpdatedAt = Now()
	return v.Validate()
}

// IsStreamable reports whether the video may participate in playlist
// generation. Only active videos are visible to players.
func (v *Video) IsStreamable() bool {
	return v.Status == VideoStatusActive
}
