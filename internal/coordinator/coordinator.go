// Package coordinator implements the Catalog Coordinator: the one place
// that drives a video through probe, plan, upload, and commit, and tears
// a video's rows and remote segments back down on delete.
//
// Execution is guarded by a per-video_id lock (an active-set map plus a
// mutex) and runs out of a scratch directory per ingest, with fixed
// stages rather than a pluggable stage list: a four-step pipeline doesn't
// need a general orchestration abstraction.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pirelike/hlsvault/internal/apperrors"
	"github.com/pirelike/hlsvault/internal/distributor"
	"github.com/pirelike/hlsvault/internal/ffmpeg"
	"github.com/pirelike/hlsvault/internal/models"
	"github.com/pirelike/hlsvault/internal/planner"
	"github.com/pirelike/hlsvault/internal/progress"
	"github.com/pirelike/hlsvault/internal/repository"
)

// Coordinator drives ingest and delete for catalog videos.
type Coordinator struct {
	videos      repository.VideoRepository
	segments    repository.SegmentRepository
	subtitles   repository.SubtitleTrackRepository
	jobs        repository.JobRepository
	transcoder  *ffmpeg.Transcoder
	planner     *planner.Planner
	distributor *distributor.Distributor
	tracker     *progress.Tracker
	scratchDir  string
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

// New creates a Coordinator.
func New(
	videos repository.VideoRepository,
	segments repository.SegmentRepository,
	subtitles repository.SubtitleTrackRepository,
	jobs repository.JobRepository,
	transcoder *ffmpeg.Transcoder,
	p *planner.Planner,
	dist *distributor.Distributor,
	tracker *progress.Tracker,
	scratchDir string,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		videos:      videos,
		segments:    segments,
		subtitles:   subtitles,
		jobs:        jobs,
		transcoder:  transcoder,
		planner:     p,
		distributor: dist,
		tracker:     tracker,
		scratchDir:  scratchDir,
		logger:      logger,
		active:      make(map[string]bool),
	}
}

// acquire claims the per-ID execution lock. Returns false if an ingest or
// delete is already running for videoID.
func (c *Coordinator) acquire(videoID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[videoID] {
		return false
	}
	c.active[videoID] = true
	return true
}

func (c *Coordinator) release(videoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, videoID)
}

// deriveVideoID sanitizes the source filename into a stable textual
// identifier, appending a numeric suffix (-1, -2, ...) on collision: a
// re-ingest of a file whose base name is already in the catalog gets a
// new, suffixed ID. The directory part of the path plays no role.
func deriveVideoID(ctx context.Context, videos repository.VideoRepository, sourceFilename string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(sourceFilename), filepath.Ext(sourceFilename))
	base = sanitizeID(base)
	if base == "" {
		base = "video"
	}

	candidate := base
	for i := 1; ; i++ {
		exists, err := videos.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking video_id collision: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Ingest runs a source file through probe, plan, upload, and commit,
// producing an active catalog video. jobID, if non-empty, is used to
// report phase progress to the Tracker.
func (c *Coordinator) Ingest(ctx context.Context, path string, jobID string) (*models.Video, error) {
	videoID, err := deriveVideoID(ctx, c.videos, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	if !c.acquire(videoID) {
		return nil, apperrors.Conflict(fmt.Sprintf("ingest already running for video_id %q", videoID))
	}
	defer c.release(videoID)

	video := &models.Video{
		VideoID:        videoID,
		SourceFilename: filepath.Base(path),
		Status:         models.VideoStatusProcessing,
	}
	if err := c.videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("creating video row: %w", err)
	}

	job := &models.Job{Type: models.JobTypeIngest, VideoID: videoID}
	job.MarkRunning()
	if err := c.jobs.Create(ctx, job); err != nil {
		c.logger.Warn("creating ingest job record failed", slog.String("error", err.Error()))
	}

	scratch := filepath.Join(c.scratchDir, videoID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, c.fail(ctx, video, job, fmt.Errorf("creating scratch dir: %w", err), nil)
	}
	defer os.RemoveAll(scratch)

	if jobID != "" {
		c.tracker.SetPhase(jobID, progress.PhaseProbing)
	}
	info, err := c.transcoder.Probe(ctx, path)
	if err != nil {
		return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindProbeFailed, "probing source", err), nil)
	}

	if jobID != "" {
		c.tracker.SetPhase(jobID, progress.PhasePlanning)
	}
	plan, err := c.planner.Plan(ctx, path, info, scratch)
	if err != nil {
		if _, ok := err.(*planner.PlanOversizeError); ok {
			return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindPlanOversize, "no viable segment plan", err), nil)
		}
		return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindTranscodeFailed, "planning segments", err), nil)
	}

	if err := writeResumeManifest(scratch, videoID, plan.Segments); err != nil {
		c.logger.Warn("writing resume manifest failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
	}

	if jobID != "" {
		c.tracker.SetPhase(jobID, progress.PhaseUploading)
	}
	units := make([]distributor.UploadUnit, len(plan.Segments))
	var totalBytes int64
	for i, seg := range plan.Segments {
		segPath := seg.Path
		units[i] = distributor.UploadUnit{
			VideoID:  videoID,
			Ordinal:  seg.Ordinal,
			Filename: filepath.Base(segPath),
			Open: func() (io.ReadCloser, error) {
				return os.Open(segPath)
			},
		}
		totalBytes += seg.SizeBytes
	}

	results, err := c.distributor.UploadAll(ctx, units)
	if err != nil {
		return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindUploadFailed, "uploading segments", err), results)
	}

	if jobID != "" {
		c.tracker.SetPhase(jobID, progress.PhaseCommitting)
		c.tracker.UpdateBytes(jobID, totalBytes)
	}

	segByOrdinal := make(map[int]ffmpeg.SegmentFile, len(plan.Segments))
	for _, s := range plan.Segments {
		segByOrdinal[s.Ordinal] = s
	}

	rows := make([]*models.Segment, len(results))
	for i, r := range results {
		sf := segByOrdinal[r.Ordinal]
		rows[i] = &models.Segment{
			VideoID:      r.VideoID,
			Ordinal:      r.Ordinal,
			Filename:     filepath.Base(sf.Path),
			DurationS:    sf.DurationS,
			SizeBytes:    sf.SizeBytes,
			RemoteHandle: r.Handle,
			AccountID:    r.AccountID,
		}
	}
	if err := c.segments.CreateBatch(ctx, rows); err != nil {
		return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindIntegrityViolation, "persisting segment rows", err), results)
	}

	video.Container = info.Container
	video.VideoCodec = info.VideoCodec
	video.AudioCodec = info.AudioCodec
	video.DurationS = info.DurationS
	video.TotalSegments = len(rows)
	video.TotalBytes = totalBytes
	video.Status = models.VideoStatusActive
	if err := c.videos.Update(ctx, video); err != nil {
		// Segment rows are already committed at this point; fail reads them
		// back from the DB rather than needing results passed again.
		return nil, c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindIntegrityViolation, "committing video row", err), nil)
	}

	job.MarkCompleted()
	_ = c.jobs.Update(ctx, job)
	if jobID != "" {
		c.tracker.Finish(jobID)
	}

	c.logger.InfoContext(ctx, "ingest completed",
		slog.String("video_id", videoID),
		slog.Int("segments", len(rows)),
		slog.Bool("reencoded", plan.Reencoded),
	)

	return video, nil
}

// fail marks video and job as errored and tears back down whatever this
// ingest attempt had already uploaded or committed: uploaded holds the
// partial *distributor.UploadResult set from an UploadAll failure (nil if
// the failure happened before any upload was attempted), and any segments
// rows already persisted by a prior CreateBatch are read back from the DB,
// since fail has no other way to learn about them once Ingest's local
// slice has gone out of scope.
func (c *Coordinator) fail(ctx context.Context, video *models.Video, job *models.Job, cause error, uploaded []distributor.UploadResult) error {
	c.cleanupUploads(ctx, video.VideoID, uploaded)

	if updErr := c.videos.UpdateStatus(ctx, video.VideoID, models.VideoStatusError, cause.Error()); updErr != nil {
		c.logger.Error("marking video error failed", slog.String("error", updErr.Error()))
	}
	job.MarkFailed(cause)
	if updErr := c.jobs.Update(ctx, job); updErr != nil {
		c.logger.Error("marking job failed failed", slog.String("error", updErr.Error()))
	}
	c.logger.ErrorContext(ctx, "ingest failed", slog.String("video_id", video.VideoID), slog.String("error", cause.Error()))
	return cause
}

// cleanupUploads deletes any segments rows already persisted for videoID
// and best-effort deletes every handle uploaded so far — both the ones
// still only in uploaded (an UploadAll or CreateBatch failure, before any
// row exists) and any rows a prior CreateBatch already committed (a
// failure between commit and marking the video active). Per spec §4.9 this
// is required, not optional: an ingest failure must never leave orphaned
// segment rows or orphaned remote uploads behind.
func (c *Coordinator) cleanupUploads(ctx context.Context, videoID string, uploaded []distributor.UploadResult) {
	units := make([]distributor.DeleteUnit, 0, len(uploaded))
	for _, r := range uploaded {
		units = append(units, distributor.DeleteUnit{Handle: r.Handle, AccountID: r.AccountID})
	}

	rows, err := c.segments.GetByVideoID(ctx, videoID)
	if err != nil {
		c.logger.Error("listing segments for cleanup failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
	} else if len(rows) > 0 {
		for _, row := range rows {
			units = append(units, distributor.DeleteUnit{Handle: row.RemoteHandle, AccountID: row.AccountID})
		}
		if err := c.segments.DeleteByVideoID(ctx, videoID); err != nil {
			c.logger.Error("deleting segment rows for cleanup failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
		}
	}

	if len(units) == 0 {
		return
	}
	errs := c.distributor.DeleteAll(ctx, units)
	for i, derr := range errs {
		if derr != nil {
			c.logger.Warn("best-effort remote cleanup failed",
				slog.String("video_id", videoID),
				slog.String("handle", units[i].Handle),
				slog.String("error", derr.Error()))
		}
	}
}

// Delete removes a video's catalog rows and best-effort deletes its remote
// segments and subtitle tracks. The database is authoritative: a
// remote-delete failure is logged but does not prevent the catalog rows
// from being removed, nor does it fail the operation — per spec §4.9 the
// remote deletions are spawned only after the local commit succeeds.
func (c *Coordinator) Delete(ctx context.Context, videoID string) error {
	if !c.acquire(videoID) {
		return apperrors.Conflict(fmt.Sprintf("operation already running for video_id %q", videoID))
	}
	defer c.release(videoID)

	video, err := c.videos.GetByID(ctx, videoID)
	if err != nil || video == nil {
		return apperrors.NotFound("video", videoID)
	}

	job := &models.Job{Type: models.JobTypeDelete, VideoID: videoID}
	job.MarkRunning()
	_ = c.jobs.Create(ctx, job)

	segs, err := c.segments.GetByVideoID(ctx, videoID)
	if err != nil {
		job.MarkFailed(err)
		_ = c.jobs.Update(ctx, job)
		return fmt.Errorf("listing segments: %w", err)
	}
	tracks, err := c.subtitles.GetByVideoID(ctx, videoID)
	if err != nil {
		job.MarkFailed(err)
		_ = c.jobs.Update(ctx, job)
		return fmt.Errorf("listing subtitle tracks: %w", err)
	}

	units := make([]distributor.DeleteUnit, 0, len(segs)+len(tracks))
	for _, s := range segs {
		units = append(units, distributor.DeleteUnit{Handle: s.RemoteHandle, AccountID: s.AccountID})
	}
	for _, t := range tracks {
		units = append(units, distributor.DeleteUnit{Handle: t.RemoteHandle, AccountID: t.AccountID})
	}

	if err := c.videos.Delete(ctx, video.VideoID); err != nil {
		job.MarkFailed(err)
		_ = c.jobs.Update(ctx, job)
		return fmt.Errorf("deleting video row: %w", err)
	}

	if len(units) > 0 {
		go c.deleteRemoteHandles(videoID, units)
	}

	job.MarkCompleted()
	_ = c.jobs.Update(ctx, job)

	c.logger.InfoContext(ctx, "video deleted", slog.String("video_id", videoID), slog.Int("remote_handles", len(units)))
	return nil
}

// deleteRemoteHandles best-effort deletes every handle belonging to a
// video whose catalog rows are already committed-gone, bounded by the
// distributor's global and per-account concurrency limits; a failed
// delete is logged and not retried. Runs detached from
// the request context, since the HTTP request that triggered Delete has
// already gotten its response by the time a slow remote delete finishes.
func (c *Coordinator) deleteRemoteHandles(videoID string, units []distributor.DeleteUnit) {
	errs := c.distributor.DeleteAll(context.Background(), units)
	for i, err := range errs {
		if err != nil {
			c.logger.Warn("best-effort remote delete failed",
				slog.String("video_id", videoID),
				slog.String("handle", units[i].Handle),
				slog.String("error", err.Error()))
		}
	}
}

// resumeManifestName is the file a successful Plan writes into the scratch
// directory before upload begins, so a restart mid-ingest has something
// authoritative to resume from instead of having to infer the plan from
// whatever *.ts files happen to still be on disk.
const resumeManifestName = "resume-manifest.json"

// resumeManifest is the minimal record of a committed Plan needed to redo
// upload and commit without re-probing or re-planning: the exact on-disk
// path, ordinal, duration, and size of every segment the plan decided on.
type resumeManifest struct {
	VideoID  string              `json:"video_id"`
	Segments []resumeManifestSeg `json:"segments"`
}

type resumeManifestSeg struct {
	Ordinal   int     `json:"ordinal"`
	Path      string  `json:"path"`
	DurationS float64 `json:"duration_s"`
	SizeBytes int64   `json:"size_bytes"`
}

func writeResumeManifest(scratch, videoID string, segs []ffmpeg.SegmentFile) error {
	m := resumeManifest{VideoID: videoID, Segments: make([]resumeManifestSeg, len(segs))}
	for i, s := range segs {
		m.Segments[i] = resumeManifestSeg{Ordinal: s.Ordinal, Path: s.Path, DurationS: s.DurationS, SizeBytes: s.SizeBytes}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding resume manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(scratch, resumeManifestName), data, 0o644)
}

// readValidResumeManifest loads the manifest and confirms every segment
// path it names still exists on disk; a manifest referencing a missing
// file is treated the same as no manifest at all.
func readValidResumeManifest(scratch string) (*resumeManifest, bool) {
	data, err := os.ReadFile(filepath.Join(scratch, resumeManifestName))
	if err != nil {
		return nil, false
	}
	var m resumeManifest
	if err := json.Unmarshal(data, &m); err != nil || len(m.Segments) == 0 {
		return nil, false
	}
	for _, s := range m.Segments {
		if _, err := os.Stat(s.Path); err != nil {
			return nil, false
		}
	}
	return &m, true
}

// ResumeOnStartup scans videos stuck in "processing" at boot (interrupted
// mid-ingest). A video whose scratch directory survived the restart with a
// valid resume manifest and every segment file it names still present
// resumes distribution from that plan; any other video — scratch dir
// missing, manifest absent, or a referenced segment file gone — is marked
// errored, since re-planning from scratch is the caller's responsibility
// via a fresh Ingest call.
func (c *Coordinator) ResumeOnStartup(ctx context.Context) error {
	stuck, err := c.videos.GetByStatus(ctx, models.VideoStatusProcessing)
	if err != nil {
		return fmt.Errorf("listing processing videos: %w", err)
	}

	for _, v := range stuck {
		scratch := filepath.Join(c.scratchDir, v.VideoID)
		if manifest, ok := readValidResumeManifest(scratch); ok {
			c.logger.InfoContext(ctx, "resuming interrupted ingest from scratch directory",
				slog.String("video_id", v.VideoID),
				slog.String("scratch_dir", scratch),
			)
			if err := c.resumeDistribution(ctx, v, scratch, manifest); err != nil {
				c.logger.Error("resuming interrupted ingest failed",
					slog.String("video_id", v.VideoID), slog.String("error", err.Error()))
			}
			continue
		}

		c.logger.WarnContext(ctx, "marking interrupted ingest as error",
			slog.String("video_id", v.VideoID),
			slog.Time("created_at", v.CreatedAt),
		)
		if err := c.videos.UpdateStatus(ctx, v.VideoID, models.VideoStatusError, "ingest interrupted by restart"); err != nil {
			c.logger.Error("failed to mark interrupted video as error", slog.String("video_id", v.VideoID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// resumeDistribution re-runs upload and commit over the plan recorded in
// manifest, picking up an ingest interrupted after planning but before the
// segments row commit. On failure it marks the video errored through fail,
// same as a fresh Ingest would.
func (c *Coordinator) resumeDistribution(ctx context.Context, video *models.Video, scratch string, manifest *resumeManifest) error {
	if !c.acquire(video.VideoID) {
		return apperrors.Conflict(fmt.Sprintf("operation already running for video_id %q", video.VideoID))
	}
	defer c.release(video.VideoID)
	defer os.RemoveAll(scratch)

	job := &models.Job{Type: models.JobTypeIngest, VideoID: video.VideoID}
	job.MarkRunning()
	_ = c.jobs.Create(ctx, job)

	units := make([]distributor.UploadUnit, len(manifest.Segments))
	sizeByOrdinal := make(map[int]int64, len(manifest.Segments))
	durByOrdinal := make(map[int]float64, len(manifest.Segments))
	for i, s := range manifest.Segments {
		segPath := s.Path
		units[i] = distributor.UploadUnit{
			VideoID:  video.VideoID,
			Ordinal:  s.Ordinal,
			Filename: filepath.Base(segPath),
			Open: func() (io.ReadCloser, error) {
				return os.Open(segPath)
			},
		}
		sizeByOrdinal[s.Ordinal] = s.SizeBytes
		durByOrdinal[s.Ordinal] = s.DurationS
	}

	results, err := c.distributor.UploadAll(ctx, units)
	if err != nil {
		return c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindUploadFailed, "resuming upload", err), results)
	}

	var totalBytes int64
	rows := make([]*models.Segment, len(results))
	for i, r := range results {
		size := sizeByOrdinal[r.Ordinal]
		totalBytes += size
		rows[i] = &models.Segment{
			VideoID:      r.VideoID,
			Ordinal:      r.Ordinal,
			Filename:     units[i].Filename,
			DurationS:    durByOrdinal[r.Ordinal],
			SizeBytes:    size,
			RemoteHandle: r.Handle,
			AccountID:    r.AccountID,
		}
	}
	if err := c.segments.CreateBatch(ctx, rows); err != nil {
		return c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindIntegrityViolation, "persisting resumed segment rows", err), results)
	}

	video.TotalSegments = len(rows)
	video.TotalBytes = totalBytes
	video.Status = models.VideoStatusActive
	if err := c.videos.Update(ctx, video); err != nil {
		return c.fail(ctx, video, job, apperrors.Wrap(apperrors.KindIntegrityViolation, "committing resumed video row", err), nil)
	}

	job.MarkCompleted()
	_ = c.jobs.Update(ctx, job)

	c.logger.InfoContext(ctx, "resumed ingest completed",
		slog.String("video_id", video.VideoID),
		slog.Int("segments", len(rows)),
	)
	return nil
}

// SweepStaleJobs deletes completed and failed job rows whose completion time
// is older than retention (pending and running rows are kept), called
// from a periodic cron tick per the domain stack's robfig/cron scheduler.
func (c *Coordinator) SweepStaleJobs(ctx context.Context, retention time.Duration) error {
	n, err := c.jobs.DeleteCompletedBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return fmt.Errorf("sweeping stale jobs: %w", err)
	}
	if n > 0 {
		c.logger.InfoContext(ctx, "swept stale jobs", slog.Int64("count", n))
	}
	return nil
}
