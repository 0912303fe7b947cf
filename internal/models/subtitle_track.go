package models

import "gorm.io/gorm"

// SubtitleTrack is the catalog row for one subtitle track attached to a
// video. Tracks are served as single whole-file HLS media entries; there
// is no WebVTT segmentation.
type SubtitleTrack struct {
	VideoID    string `gorm:"primaryKey;column:video_id;size:255" json:"video_id"`
	TrackIndex int    `gorm:"primaryKey;column:track_index" json:"track_index"`

	Language string `gorm:"size:20" json:"language"`
	Title    string `gorm:"size:255" json:"title"`
	Codec    string `gorm:"size:50" json:"codec"`

	Default        bool `json:"default"`
	Forced         bool `json:"forced"`
	HearingImpaired bool `gorm:"column:hearing_impaired" json:"hearing_impaired"`

	RemoteHandle string `gorm:"column:remote_handle;size:512" json:"remote_handle"`
	AccountID    string `gorm:"column:account_id;size:100;index" json:"account_id"`

	CreatedAt Time `json:"created_at"`
}

// TableName returns the table name for SubtitleTrack.
func (SubtitleTrack) TableName() string {
	return "subtitle_tracks"
}

// Validate performs field-level validation independent of database state.
func (s *SubtitleTrack) Validate() error {
	if s.VideoID == "" {
		return ErrVideoIDRequired
	}
	if s.TrackIndex < 0 {
		return ErrTrackIndexNegative
	}
	if s.Language == "" {
		return ErrLanguageRequired
	}
	if s.AccountID == "" {
		return ErrAccountIDRequired
	}
	if s.RemoteHandle == "" {
		return ErrRemoteHandleRequired
	}
	return nil
}

// BeforeCreate validates the row and stamps the created-at timestamp.
func (s *SubtitleTrack) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = Now()
	}
	return s.Validate()
}
