package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for catalog models.
var (
	// ErrVideoIDRequired indicates a required video_id field is empty.
	ErrVideoIDRequired = errors.New("video_id is required")

	// ErrSourceFilenameRequired indicates a required source filename field is empty.
	ErrSourceFilenameRequired = errors.New("source_filename is required")

	// ErrInvalidVideoStatus indicates an invalid video status value.
	ErrInvalidVideoStatus = errors.New("invalid video status")

	// ErrDurationNonPositive indicates a duration field is not greater than zero.
	ErrDurationNonPositive = errors.New("duration_s must be greater than zero")

	// ErrOrdinalNegative indicates a segment ordinal is negative.
	ErrOrdinalNegative = errors.New("ordinal must be non-negative")

	// ErrSegmentDurationNonPositive indicates a segment duration is not greater than zero.
	ErrSegmentDurationNonPositive = errors.New("duration_s must be greater than zero")

	// ErrSizeBytesNonPositive indicates a size field is not greater than zero.
	ErrSizeBytesNonPositive = errors.New("size_bytes must be greater than zero")

	// ErrAccountIDRequired indicates a required account_id field is empty.
	ErrAccountIDRequired = errors.New("account_id is required")

	// ErrRemoteHandleRequired indicates a required remote_handle field is empty.
	ErrRemoteHandleRequired = errors.New("remote_handle is required")

	// ErrTrackIndexNegative indicates a subtitle track_index is negative.
	ErrTrackIndexNegative = errors.New("track_index must be non-negative")

	// ErrLanguageRequired indicates a required language field is empty.
	ErrLanguageRequired = errors.New("language is required")
)
