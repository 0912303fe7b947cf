package models

import "gorm.io/gorm"

// Segment is the catalog row for one uploaded HLS media segment. A row
// exists only after a successful upload commit; ordinals are dense
// (0..total_segments-1, no gaps) for any active video.
type Segment struct {
	VideoID string `gorm:"primaryKey;column:video_id;size:255" json:"video_id"`
	Ordinal int    `gorm:"primaryKey;column:ordinal" json:"ordinal"`

	Filename  string  `gorm:"not null;size:255" json:"filename"`
	DurationS float64 `gorm:"column:duration_s" json:"duration_s"`
	SizeBytes int64   `gorm:"column:size_bytes" json:"size_bytes"`

	// RemoteHandle is the opaque handle returned by the Remote Blob
	// Client's upload operation. AccountID is immutable after insert:
	// retrieval must use exactly this account, never another.
	RemoteHandle string `gorm:"column:remote_handle;size:512" json:"remote_handle"`
	AccountID    string `gorm:"column:account_id;size:100;index" json:"account_id"`

	CreatedAt Time `json:"created_at"`
}

// TableName returns the table name for Segment.
func (Segment) TableName() string {
	return "segments"
}

// Validate performs field-level validation independent of database state.
func (s *Segment) Validate() error {
	if s.VideoID == "" {
		return ErrVideoIDRequired
	}
	if s.Ordinal < 0 {
		return ErrOrdinalNegative
	}
	if s.DurationS <= 0 {
		return ErrSegmentDurationNonPositive
	}
	if s.SizeBytes <= 0 {
		return ErrSizeBytesNonPositive
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
func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = Now()
	}
	return s.Validate()
}

// Key returns the cache/lookup key for this segment.
func (s *Segment) Key() SegmentKey {
	return SegmentKey{VideoID: s.VideoID, Ordinal: s.Ordinal}
}

// SegmentKey identifies a segment independent of a loaded row; used as the
// cache and single-flight key.
type SegmentKey struct {
	VideoID string
	Ordinal int
}
