// Package planner implements the geometric-duration search that picks a
// segmentation strategy satisfying a per-segment byte cap, re-encoding only
// the segments that overflow.
package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pirelike/hlsvault/internal/ffmpeg"
)

// defaultCandidatesS is the geometric duration schedule searched from
// largest to smallest, per spec §4.1.
var defaultCandidatesS = []float64{30, 25, 20, 15, 10, 8, 6, 5, 3, 2}

// PlanOversizeError reports that no duration, re-encode, or local split
// could bring a segment under the byte cap. Terminal for the ingest.
type PlanOversizeError struct {
	VideoPath string
	Ordinal   int
}

func (e *PlanOversizeError) Error() string {
	return fmt.Sprintf("planner: segment %d of %s remains oversize after re-encode and split", e.Ordinal, e.VideoPath)
}

// Config bounds the search.
type Config struct {
	MaxSegmentBytes      int64
	MinSegmentDuration   time.Duration
	MaxSegmentDuration   time.Duration
	PlanTimeBudget       time.Duration
	ReencodeSafetyFactor float64
}

// Plan is the final ordered segment list satisfying the byte cap.
type Plan struct {
	Segments    []ffmpeg.SegmentFile
	ChosenS     float64
	Reencoded   bool
	WasCompatible bool
}

// Planner drives the Transcoder Driver through the candidate-duration
// search, re-encode overflow handling, and one-level split-and-recurse,
// following the "best of N candidates under a time budget, early exit on
// first perfect candidate" shape.
type Planner struct {
	transcoder *ffmpeg.Transcoder
	cfg        Config
}

// New creates a Planner.
func New(transcoder *ffmpeg.Transcoder, cfg Config) *Planner {
	return &Planner{transcoder: transcoder, cfg: cfg}
}

// candidates returns the configured geometric schedule filtered to
// [MinSegmentDuration, MaxSegmentDuration].
func (p *Planner) candidates() []float64 {
	minS := p.cfg.MinSegmentDuration.Seconds()
	maxS := p.cfg.MaxSegmentDuration.Seconds()
	out := make([]float64, 0, len(defaultCandidatesS))
	for _, d := range defaultCandidatesS {
		if d >= minS && d <= maxS {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		out = append(out, maxS)
	}
	return out
}

// candidateResult is the outcome of probing one candidate duration.
type candidateResult struct {
	durationS int
	segments  []ffmpeg.SegmentFile
	oversize  int
}

// Plan executes the full ingest-time planning contract for path, writing
// scratch segment files under scratchDir.
func (p *Planner) Plan(ctx context.Context, path string, info ffmpeg.MediaInfo, scratchDir string) (*Plan, error) {
	if !info.Compatible {
		// Incompatible source: full transcode, size-cap compliance is the
		// encoder's responsibility at a target bitrate derived from the cap.
		return p.planIncompatible(ctx, path, info, scratchDir)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PlanTimeBudget)
	defer cancel()

	candidates := p.candidates()
	var best *candidateResult
	var bestD float64
	for i, d := range candidates {
		select {
		case <-ctx.Done():
			goto searchDone
		default:
		}

		candDir := filepath.Join(scratchDir, fmt.Sprintf("probe-%d", i))
		segs, err := p.transcoder.Segment(ctx, path, info, d, candDir, true)
		if err != nil {
			continue
		}

		oversize := countOversize(segs, p.cfg.MaxSegmentBytes)
		result := &candidateResult{durationS: int(d), segments: segs, oversize: oversize}

		if best == nil || better(result, best, d, bestD) {
			best = result
			bestD = d
		}
		if oversize == 0 {
			break // early exit: first zero-oversize candidate wins
		}
	}
searchDone:

	if best == nil {
		return nil, fmt.Errorf("planner: no candidate duration produced usable segments for %s", path)
	}

	chosenD := bestD
	segs := best.segments
	reencoded := false

	finalSegs := make([]ffmpeg.SegmentFile, 0, len(segs))
	for _, seg := range segs {
		if seg.SizeBytes <= p.cfg.MaxSegmentBytes {
			finalSegs = append(finalSegs, seg)
			continue
		}
		reencoded = true
		fixed, err := p.fixOversize(ctx, seg, chosenD, info, 1)
		if err != nil {
			return nil, err
		}
		finalSegs = append(finalSegs, fixed...)
	}
	renumber(finalSegs)

	return &Plan{Segments: finalSegs, ChosenS: chosenD, Reencoded: reencoded, WasCompatible: true}, nil
}

// planIncompatible fully transcodes a source whose container/codecs cannot
// be copy-remuxed, targeting a bitrate derived from the byte cap at the
// maximum configured segment duration.
func (p *Planner) planIncompatible(ctx context.Context, path string, info ffmpeg.MediaInfo, scratchDir string) (*Plan, error) {
	chosenD := p.cfg.MaxSegmentDuration.Seconds()
	targetBitrate := bitrateForCap(p.cfg.MaxSegmentBytes, chosenD, p.cfg.ReencodeSafetyFactor)

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, err
	}

	reencodedPath, err := p.transcoder.Reencode(ctx, path, targetBitrate, info.AudioCodec)
	if err != nil {
		return nil, err
	}

	newInfo, err := p.transcoder.Probe(ctx, reencodedPath)
	if err != nil {
		return nil, err
	}
	newInfo.Compatible = true

	segs, err := p.transcoder.Segment(ctx, reencodedPath, newInfo, chosenD, scratchDir, false)
	if err != nil {
		return nil, err
	}

	finalSegs := make([]ffmpeg.SegmentFile, 0, len(segs))
	for _, seg := range segs {
		if seg.SizeBytes <= p.cfg.MaxSegmentBytes {
			finalSegs = append(finalSegs, seg)
			continue
		}
		fixed, err := p.fixOversize(ctx, seg, chosenD, newInfo, 1)
		if err != nil {
			return nil, err
		}
		finalSegs = append(finalSegs, fixed...)
	}
	renumber(finalSegs)

	return &Plan{Segments: finalSegs, ChosenS: chosenD, Reencoded: true, WasCompatible: false}, nil
}

// renumber assigns dense, zero-based Ordinal values to segs in place,
// reflecting their position after oversize segments have been spliced into
// one or more replacement pieces.
func renumber(segs []ffmpeg.SegmentFile) {
	for i := range segs {
		segs[i].Ordinal = i
	}
}

// fixOversize re-encodes a single oversize segment at the cap-derived
// bitrate. If still oversize, it halves the duration locally by splitting
// the segment into two and recursing once per half, per spec §4.1. The
// returned slice holds every on-disk piece that together replace seg; the
// caller splices all of them into the segment list and renumbers ordinals.
func (p *Planner) fixOversize(ctx context.Context, seg ffmpeg.SegmentFile, chosenD float64, info ffmpeg.MediaInfo, splitsLeft int) ([]ffmpeg.SegmentFile, error) {
	targetBitrate := bitrateForCap(p.cfg.MaxSegmentBytes, seg.DurationS, p.cfg.ReencodeSafetyFactor)

	outPath, err := p.transcoder.Reencode(ctx, seg.Path, targetBitrate, info.AudioCodec)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, err
	}

	fixed := ffmpeg.SegmentFile{Path: outPath, Ordinal: seg.Ordinal, DurationS: seg.DurationS, SizeBytes: fi.Size()}
	if fixed.SizeBytes <= p.cfg.MaxSegmentBytes {
		return []ffmpeg.SegmentFile{fixed}, nil
	}

	if splitsLeft <= 0 {
		return nil, &PlanOversizeError{VideoPath: seg.Path, Ordinal: seg.Ordinal}
	}

	splitDir := seg.Path + ".split"
	halfD := seg.DurationS / 2
	halves, err := p.transcoder.Segment(ctx, seg.Path, info, halfD, splitDir, true)
	if err != nil || len(halves) == 0 {
		return nil, &PlanOversizeError{VideoPath: seg.Path, Ordinal: seg.Ordinal}
	}

	out := make([]ffmpeg.SegmentFile, 0, len(halves))
	for _, half := range halves {
		if half.SizeBytes <= p.cfg.MaxSegmentBytes {
			out = append(out, half)
			continue
		}
		pieces, err := p.fixOversize(ctx, half, halfD, info, splitsLeft-1)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}

func countOversize(segs []ffmpeg.SegmentFile, cap int64) int {
	n := 0
	for _, s := range segs {
		if s.SizeBytes > cap {
			n++
		}
	}
	return n
}

// better reports whether candidate a beats the current best b: fewer
// oversize segments wins, ties broken toward the larger duration.
func better(a, b *candidateResult, aD, bD float64) bool {
	if a.oversize != b.oversize {
		return a.oversize < b.oversize
	}
	return aD > bD
}

// bitrateForCap computes B = (C*8*safety)/d, spec §4.1's re-encode formula.
func bitrateForCap(capBytes int64, durationS, safety float64) int {
	if durationS <= 0 {
		durationS = 1
	}
	return int(float64(capBytes) * 8 * safety / durationS)
}
