package ffmpeg

import (
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// CodecFamily is the base codec family, independent of encoder implementation
// (e.g. both "h264" and "h264_nvenc" normalize to CodecFamilyH264).
type CodecFamily string

const (
	CodecFamilyH264    CodecFamily = "h264"
	CodecFamilyHEVC    CodecFamily = "hevc"
	CodecFamilyAAC     CodecFamily = "aac"
	CodecFamilyMP3     CodecFamily = "mp3"
	CodecFamilyUnknown CodecFamily = ""
)

// NormalizeCodecFamily maps an ffprobe codec name or FFmpeg encoder name to
// its codec family.
func NormalizeCodecFamily(name string) CodecFamily {
	name = strings.ToLower(name)
	switch {
	case name == "h264" || strings.HasPrefix(name, "libx264") || strings.HasSuffix(name, "h264_nvenc") ||
		strings.HasSuffix(name, "h264_qsv") || strings.HasSuffix(name, "h264_vaapi"):
		return CodecFamilyH264
	case name == "hevc" || name == "h265" || strings.HasPrefix(name, "libx265") ||
		strings.HasSuffix(name, "hevc_nvenc") || strings.HasSuffix(name, "hevc_qsv") || strings.HasSuffix(name, "hevc_vaapi"):
		return CodecFamilyHEVC
	case name == "aac" || strings.HasPrefix(name, "aac"):
		return CodecFamilyAAC
	case name == "mp3" || strings.HasPrefix(name, "libmp3lame"):
		return CodecFamilyMP3
	default:
		return CodecFamilyUnknown
	}
}

// mpegtsCodecFor maps a codec family to the mediacommon MPEG-TS codec type
// that would mux it, or nil if mediacommon has no muxable representation.
func mpegtsCodecFor(family CodecFamily) mpegts.Codec {
	switch family {
	case CodecFamilyH264:
		return &mpegts.CodecH264{}
	case CodecFamilyHEVC:
		return &mpegts.CodecH265{}
	case CodecFamilyAAC:
		return &mpegts.CodecMPEG4Audio{}
	case CodecFamilyMP3:
		return &mpegts.CodecMPEG1Audio{}
	default:
		return nil
	}
}

// SegmentFormatCompatible reports whether the source's video and audio
// codecs can be copy-remuxed directly into MPEG-TS segments, per spec
// §4.1: "transport-stream with H.264/HEVC + AAC/MP3". Compatibility comes
// from mpegtsCodecFor's fixed mapping of those four codec families to
// mediacommon MPEG-TS codec types; any other codec is reported
// incompatible. An incompatible source must be fully transcoded before
// segmentation.
func SegmentFormatCompatible(videoCodec, audioCodec string) bool {
	videoFamily := NormalizeCodecFamily(videoCodec)
	videoMuxable := videoFamily == CodecFamilyH264 || videoFamily == CodecFamilyHEVC
	if !videoMuxable || mpegtsCodecFor(videoFamily) == nil {
		return false
	}

	if audioCodec == "" {
		return true
	}
	audioFamily := NormalizeCodecFamily(audioCodec)
	return mpegtsCodecFor(audioFamily) != nil
}

// BitstreamFilters returns the `-bsf:v`/`-bsf:a` values needed when
// copy-remuxing into MPEG-TS. H.264/HEVC copies get `dump_extra` so that
// SPS/PPS (and VPS for HEVC) parameter sets accompany every keyframe,
// letting a player join a segment mid-stream without missing them.
func BitstreamFilters(videoCodec string) (videoBSF, audioBSF string) {
	switch NormalizeCodecFamily(videoCodec) {
	case CodecFamilyH264, CodecFamilyHEVC:
		videoBSF = "dump_extra=freq=keyframe"
	}
	// MPEG-TS uses ADTS for AAC, which is FFmpeg's default; no audio BSF needed.
	return videoBSF, ""
}

// ApplyBitstreamFilters adds bitstream filter output args to the builder
// when non-empty.
func ApplyBitstreamFilters(builder *CommandBuilder, videoBSF, audioBSF string) *CommandBuilder {
	if videoBSF != "" {
		builder.OutputArgs("-bsf:v", videoBSF)
	}
	if audioBSF != "" {
		builder.OutputArgs("-bsf:a", audioBSF)
	}
	return builder
}
