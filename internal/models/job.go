package models

import (
	"time"

	"gorm.io/gorm"
)

// JobType represents the kind of catalog background job.
type JobType string

const (
	// JobTypeIngest represents a video ingest job (probe, plan, upload, commit).
	JobTypeIngest JobType = "ingest"
	// JobTypeDelete represents a video delete job (DB cascade, remote cleanup).
	JobTypeDelete JobType = "delete"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be executed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// Job represents a tracked ingest or delete task execution record.
// It is bookkeeping for the Catalog Coordinator's background work, separate
// from the Video/Segment/SubtitleTrack catalog rows it operates on.
type Job struct {
	BaseModel

	// Type indicates what kind of job this is.
	Type JobType `gorm:"not null;size:20;index" json:"type"`

	// VideoID is the catalog video_id this job operates on. Used to
	// deduplicate concurrent job requests for the same video.
	VideoID string `gorm:"size:255;index" json:"video_id"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// StartedAt is the timestamp when the job started executing.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job completed (successfully or with error).
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// LastError contains the error message from a failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`

	// Progress mirrors the most recently reported ingest progress, e.g.
	// "planning", "uploading:3/12", "committing".
	Progress string `gorm:"size:255" json:"progress,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsPending returns true if the job is pending execution.
func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending
}

// IsRunning returns true if the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsFinished returns true if the job has completed (successfully or not).
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkRunning marks the job as running.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.LastError = ""
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.LastError = ""

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now

	if err != nil {
		j.LastError = err.Error()
	}

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrValidation{Field: "type", Message: "job type is required"}
	}
	if j.VideoID == "" {
		return ErrVideoIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates a ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook that validates the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}

// elapsed is a small helper kept for parity with how progress handlers
// compute in-flight duration for still-running jobs.
func (j *Job) elapsed() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}
