package ffmpeg

import "testing"

func TestSegmentFormatCompatible(t *testing.T) {
	tests := []struct {
		name       string
		videoCodec string
		audioCodec string
		want       bool
	}{
		{"h264+aac compatible", "h264", "aac", true},
		{"hevc+mp3 compatible", "hevc", "mp3", true},
		{"h264 no audio", "h264", "", true},
		{"vp9 incompatible video", "vp9", "aac", false},
		{"h264 with opus incompatible audio", "h264", "opus", false},
		{"unknown video", "", "aac", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentFormatCompatible(tt.videoCodec, tt.audioCodec)
			if got != tt.want {
				t.Errorf("SegmentFormatCompatible(%q, %q) = %v, want %v", tt.videoCodec, tt.audioCodec, got, tt.want)
			}
		})
	}
}

func TestBitstreamFilters(t *testing.T) {
	videoBSF, audioBSF := BitstreamFilters("h264")
	if videoBSF != "dump_extra=freq=keyframe" {
		t.Errorf("expected dump_extra filter for h264, got %q", videoBSF)
	}
	if audioBSF != "" {
		t.Errorf("expected no audio BSF for MPEG-TS/AAC, got %q", audioBSF)
	}

	videoBSF, _ = BitstreamFilters("vp9")
	if videoBSF != "" {
		t.Errorf("expected no BSF for vp9, got %q", videoBSF)
	}
}

func TestNormalizeCodecFamily(t *testing.T) {
	tests := map[string]CodecFamily{
		"h264":        CodecFamilyH264,
		"libx264":     CodecFamilyH264,
		"h264_nvenc":  CodecFamilyH264,
		"hevc":        CodecFamilyHEVC,
		"h265":        CodecFamilyHEVC,
		"aac":         CodecFamilyAAC,
		"mp3":         CodecFamilyMP3,
		"libmp3lame":  CodecFamilyMP3,
		"opus":        CodecFamilyUnknown,
		"":            CodecFamilyUnknown,
	}

	for name, want := range tests {
		if got := NormalizeCodecFamily(name); got != want {
			t.Errorf("NormalizeCodecFamily(%q) = %q, want %q", name, got, want)
		}
	}
}
