package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/asticode/go-astits"
)

// MediaInfo is the simplified view of a probed source the Planner and
// Coordinator consume.
type MediaInfo struct {
	Container   string
	VideoCodec  string
	AudioCodec  string
	DurationS   float64
	Width       int
	Height      int
	Bitrate     int
	Compatible  bool // true if copy-remux straight into MPEG-TS segments is possible
}

// SegmentFile describes one segment produced by Segment.
type SegmentFile struct {
	Path      string
	Ordinal   int
	DurationS float64
	SizeBytes int64
}

// TranscodeFailedError wraps an FFmpeg failure with its captured stderr,
// matching wrapper.go's ring-buffer-of-recent-lines approach.
type TranscodeFailedError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *TranscodeFailedError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s failed: %v (stderr: %s)", e.Op, e.Err, e.Stderr)
}

func (e *TranscodeFailedError) Unwrap() error { return e.Err }

// Transcoder drives ffmpeg/ffprobe to probe, segment, and re-encode source
// video, implementing the Transcoder Driver's surface (spec §4.1/§4.6).
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	prober      *Prober
}

// NewTranscoder creates a Transcoder using the given binary paths.
func NewTranscoder(ffmpegPath, ffprobePath string) *Transcoder {
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		prober:      NewProber(ffprobePath),
	}
}

// Probe inspects path and classifies whether its container/codecs are
// compatible with copy-remux into MPEG-TS segments (spec §4.1).
func (t *Transcoder) Probe(ctx context.Context, path string) (MediaInfo, error) {
	result, err := t.prober.Probe(ctx, path)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("probing %s: %w", path, err)
	}

	info := MediaInfo{
		Container: result.Format.FormatName,
		DurationS: float64(result.Duration()) / 1000,
		Bitrate:   result.Bitrate(),
	}

	if v := result.GetVideoStream(); v != nil {
		info.VideoCodec = v.CodecName
		info.Width = v.Width
		info.Height = v.Height
	}
	if a := result.GetAudioStream(); a != nil {
		info.AudioCodec = a.CodecName
	}

	info.Compatible = SegmentFormatCompatible(info.VideoCodec, info.AudioCodec)
	return info, nil
}

// Segment produces fixed-target-duration segments from path, written under
// outDir, using copy-remux when copyOnly is true (for the Planner's
// candidate search) or full re-encode otherwise. Segment filenames follow
// "segment%05d.ts" and a go-astits sanity pass confirms each has a PAT and
// a PMT; truncated packets are not detected.
func (t *Transcoder) Segment(ctx context.Context, path string, info MediaInfo, targetDurationS float64, outDir string, copyOnly bool) ([]SegmentFile, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment dir: %w", err)
	}

	pattern := filepath.Join(outDir, "segment%05d.ts")

	builder := NewCommandBuilder(t.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(path)

	if copyOnly {
		builder.VideoCodec("copy").AudioCodec("copy")
		videoBSF, audioBSF := BitstreamFilters(info.VideoCodec)
		ApplyBitstreamFilters(builder, videoBSF, audioBSF)
	} else {
		builder.VideoCodec("libx264").AudioCodec("aac")
	}

	builder.OutputArgs(
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(targetDurationS, 'f', 3, 64),
		"-segment_format", "mpegts",
		"-reset_timestamps", "1",
	)
	builder.Output(pattern)

	cmd := builder.Build()
	if err := cmd.Run(ctx); err != nil {
		stderr := strings.Join(cmd.GetStderrLines(), "\n")
		return nil, &TranscodeFailedError{Op: "segment", Err: err, Stderr: stderr}
	}

	return t.collectSegments(ctx, outDir)
}

// collectSegments reads back the produced .ts files in ordinal order,
// sanity-checking each with go-astits (PAT/PMT present) and probing its
// actual duration for the HLS #EXTINF tag and re-encode bitrate math.
func (t *Transcoder) collectSegments(ctx context.Context, outDir string) ([]SegmentFile, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("reading segment dir: %w", err)
	}

	var files []SegmentFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		path := filepath.Join(outDir, e.Name())
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}

		if err := sanityCheckTS(path); err != nil {
			return nil, fmt.Errorf("segment %s failed sanity check: %w", e.Name(), err)
		}

		var durationS float64
		if probed, err := t.prober.Probe(ctx, path); err == nil {
			durationS = float64(probed.Duration()) / 1000
		}

		files = append(files, SegmentFile{Path: path, SizeBytes: fi.Size(), DurationS: durationS})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	for i := range files {
		files[i].Ordinal = i
	}
	return files, nil
}

// sanityCheckTS opens a segment with go-astits and confirms a PAT and at
// least one PMT are present. Reading stops at the first demux error, so a
// truncated packet after them is not reported.
func sanityCheckTS(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	demux := astits.NewDemuxer(context.Background(), f)

	sawPAT, sawPMT := false, false
	for {
		data, err := demux.NextData()
		if err != nil {
			break
		}
		if data.PAT != nil {
			sawPAT = true
		}
		if data.PMT != nil {
			sawPMT = true
		}
		if sawPAT && sawPMT {
			break
		}
	}

	if !sawPAT {
		return fmt.Errorf("no PAT found")
	}
	if !sawPMT {
		return fmt.Errorf("no PMT found")
	}
	return nil
}

// Reencode re-encodes srcSegment at targetBitrateBps, preserving the
// source's audio codec parameters where possible, per spec §4.1's overflow
// handling.
func (t *Transcoder) Reencode(ctx context.Context, srcSegment string, targetBitrateBps int, audioCodec string) (string, error) {
	outPath := strings.TrimSuffix(srcSegment, filepath.Ext(srcSegment)) + ".reencoded.ts"

	builder := NewCommandBuilder(t.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(srcSegment).
		VideoCodec("libx264").
		VideoBitrate(strconv.Itoa(targetBitrateBps))

	if audioCodec != "" && NormalizeCodecFamily(audioCodec) != CodecFamilyUnknown {
		builder.AudioCodec("copy")
	} else {
		builder.AudioCodec("aac")
	}

	builder.OutputArgs("-f", "mpegts")
	builder.Output(outPath)

	cmd := builder.Build()
	if err := cmd.Run(ctx); err != nil {
		stderr := strings.Join(cmd.GetStderrLines(), "\n")
		return "", &TranscodeFailedError{Op: "reencode", Err: err, Stderr: stderr}
	}
	return outPath, nil
}
