package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSegment() *Segment {
	return &Segment{
		VideoID:      "movie-2024",
		Ordinal:      0,
		Filename:     "00000.ts",
		DurationS:    6.0,
		SizeBytes:    1024,
		RemoteHandle: "remote://handle",
		AccountID:    "acct-1",
	}
}

func TestSegment_Validate(t *testing.T) {
	t.Run("valid segment", func(t *testing.T) {
		require.NoError(t, validSegment().Validate())
	})

	t.Run("negative ordinal", func(t *testing.T) {
		s := validSegment()
		s.Ordinal = -1
		assert.ErrorIs(t, s.Validate(), ErrOrdinalNegative)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		s := validSegment()
		s.DurationS = 0
		assert.ErrorIs(t, s.Validate(), ErrSegmentDurationNonPositive)
	})

	t.Run("non-positive size", func(t *testing.T) {
		s := validSegment()
		s.SizeBytes = 0
		assert.ErrorIs(t, s.Validate(), ErrSizeBytesNonPositive)
	})

	t.Run("missing account", func(t *testing.T) {
		s := validSegment()
		s.AccountID = ""
		assert.ErrorIs(t, s.Validate(), ErrAccountIDRequired)
	})

	t.Run("missing remote handle", func(t *testing.T) {
		s := validSegment()
		s.RemoteHandle = ""
		assert.ErrorIs(t, s.Validate(), ErrRemoteHandleRequired)
	})
}

func TestSegment_Key(t *testing.T) {
	s := validSegment()
	assert.Equal(t, SegmentKey{VideoID: "movie-2024", Ordinal: 0}, s.Key())
}
