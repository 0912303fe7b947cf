package hls

import (
	"strings"
	"testing"

	"github.com/pirelike/hlsvault/internal/models"
)

func TestMediaPlaylist_StructureAndEndlist(t *testing.T) {
	segs := []SegmentInfo{
		{Ordinal: 0, Filename: "segment00000.ts", DurationS: 9.8},
		{Ordinal: 1, Filename: "segment00001.ts", DurationS: 10.0},
	}
	playlist := MediaPlaylist("vid1", "video", segs, "", BaseURLRelative)

	if !strings.HasPrefix(playlist, "#EXTM3U\n") {
		t.Error("expected playlist to start with #EXTM3U")
	}
	if !strings.Contains(playlist, "#EXT-X-VERSION:3\n") {
		t.Error("expected EXT-X-VERSION:3")
	}
	if !strings.Contains(playlist, "#EXT-X-TARGETDURATION:10\n") {
		t.Errorf("expected target duration rounded up to 10, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "#EXT-X-MEDIA-SEQUENCE:0\n") {
		t.Error("expected media sequence 0")
	}
	if !strings.HasSuffix(playlist, "#EXT-X-ENDLIST\n") {
		t.Error("expected VOD playlist to terminate with #EXT-X-ENDLIST")
	}
	if !strings.Contains(playlist, "/hls/vid1/video/segment00000.ts") {
		t.Errorf("expected relative segment URI, got:\n%s", playlist)
	}
}

func TestMediaPlaylist_AbsoluteURIs(t *testing.T) {
	segs := []SegmentInfo{{Ordinal: 0, Filename: "segment00000.ts", DurationS: 5}}
	playlist := MediaPlaylist("vid1", "video", segs, "https://example.com", BaseURLAbsolute)
	if !strings.Contains(playlist, "https://example.com/hls/vid1/video/segment00000.ts") {
		t.Errorf("expected absolute segment URI, got:\n%s", playlist)
	}
}

func TestMediaPlaylist_Deterministic(t *testing.T) {
	segs := []SegmentInfo{{Ordinal: 0, Filename: "a.ts", DurationS: 5}}
	a := MediaPlaylist("vid1", "video", segs, "", BaseURLRelative)
	b := MediaPlaylist("vid1", "video", segs, "", BaseURLRelative)
	if a != b {
		t.Error("expected byte-identical playlists for identical inputs")
	}
}

func TestMasterPlaylist_IncludesSubtitlesAndOneVariant(t *testing.T) {
	video := &models.Video{VideoID: "vid1", DurationS: 60, TotalBytes: 7_500_000}
	subs := []SubtitleInfo{
		{TrackIndex: 0, Language: "en", Title: "English", Default: true},
		{TrackIndex: 1, Language: "fr", Title: "French"},
	}
	playlist := MasterPlaylist(video, subs, "", BaseURLRelative)

	if strings.Count(playlist, "#EXT-X-STREAM-INF") != 1 {
		t.Errorf("expected exactly one video variant, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, `LANGUAGE="en"`) || !strings.Contains(playlist, `LANGUAGE="fr"`) {
		t.Errorf("expected both subtitle languages present, got:\n%s", playlist)
	}
	if !strings.Contains(playlist, "DEFAULT=YES") {
		t.Error("expected default subtitle flag to be propagated")
	}
}
