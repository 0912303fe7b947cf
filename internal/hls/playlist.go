// Package hls generates HLS master and media playlists from catalog
// metadata. Every playlist produced here is VOD, not live: it always ends
// with #EXT-X-ENDLIST because the underlying video is finite.
package hls

import (
	"fmt"
	"math"
	"strings"

	"github.com/pirelike/hlsvault/internal/models"
)

// BaseURLMode selects whether generated URIs are relative to the playlist
// or fully qualified, per spec §4.4.
type BaseURLMode int

const (
	// BaseURLRelative emits path-only URIs.
	BaseURLRelative BaseURLMode = iota
	// BaseURLAbsolute emits scheme://host URIs built from baseURL.
	BaseURLAbsolute
)

// SegmentInfo is the subset of models.Segment the generator needs.
type SegmentInfo struct {
	Ordinal   int
	Filename  string
	DurationS float64
}

// SubtitleInfo is the subset of models.SubtitleTrack the generator needs.
type SubtitleInfo struct {
	TrackIndex int
	Language   string
	Title      string
	Default    bool
	Forced     bool
}

// MediaPlaylist produces the media (segment) playlist for one track of a
// video: EXTM3U header, EXT-X-VERSION:3, EXT-X-TARGETDURATION rounded up to
// the slowest segment, EXT-X-MEDIA-SEQUENCE:0, one EXTINF/URI pair per
// segment in ordinal order, and a terminating EXT-X-ENDLIST. Pure function
// of its inputs — no state, matching spec's explicit requirement.
func MediaPlaylist(videoID, track string, segments []SegmentInfo, baseURL string, mode BaseURLMode) string {
	target := 0
	for _, s := range segments {
		if d := int(math.Ceil(s.DurationS)); d > target {
			target = d
		}
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&sb, "#EXT-X-TARGETDURATION:%d\n", target)
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	prefix := segmentPrefix(baseURL, mode, videoID, track)
	for _, s := range segments {
		fmt.Fprintf(&sb, "#EXTINF:%.3f,\n", s.DurationS)
		sb.WriteString(prefix)
		sb.WriteString(s.Filename)
		sb.WriteString("\n")
	}
	sb.WriteString("#EXT-X-ENDLIST\n")
	return sb.String()
}

// MasterPlaylist produces the master playlist for an active video: exactly
// one video variant (spec's non-goal: no ABR ladder) and one
// EXT-X-MEDIA:TYPE=SUBTITLES entry per subtitle track.
func MasterPlaylist(video *models.Video, subtitles []SubtitleInfo, baseURL string, mode BaseURLMode) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")

	for _, st := range subtitles {
		fmt.Fprintf(&sb, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"subs\",NAME=\"%s\",LANGUAGE=\"%s\"",
			escapeAttr(st.Title), escapeAttr(st.Language))
		if st.Default {
			sb.WriteString(",DEFAULT=YES")
		}
		if st.Forced {
			sb.WriteString(",FORCED=YES")
		}
		fmt.Fprintf(&sb, ",URI=\"%ssubtitles/%s\"\n", segmentPrefix(baseURL, mode, video.VideoID, ""), st.Language)
	}

	bandwidth := estimateBandwidth(video)
	extra := ""
	if len(subtitles) > 0 {
		extra = ",SUBTITLES=\"subs\""
	}
	fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d%s\n", bandwidth, extra)
	fmt.Fprintf(&sb, "%svideo/playlist.m3u8\n", segmentPrefix(baseURL, mode, video.VideoID, ""))
	return sb.String()
}

// estimateBandwidth derives the BANDWIDTH attribute from total bytes and
// duration; the Video row records no source bitrate.
func estimateBandwidth(video *models.Video) int64 {
	if video.DurationS <= 0 {
		return 0
	}
	return int64(float64(video.TotalBytes) * 8 / video.DurationS)
}

func segmentPrefix(baseURL string, mode BaseURLMode, videoID, track string) string {
	base := ""
	if mode == BaseURLAbsolute {
		base = strings.TrimSuffix(baseURL, "/")
	}
	if track == "" {
		return fmt.Sprintf("%s/hls/%s/", base, videoID)
	}
	return fmt.Sprintf("%s/hls/%s/%s/", base, videoID, track)
}

func escapeAttr(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
