package coordinator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pirelike/hlsvault/internal/blobclient"
	"github.com/pirelike/hlsvault/internal/config"
	"github.com/pirelike/hlsvault/internal/distributor"
	"github.com/pirelike/hlsvault/internal/ffmpeg"
	"github.com/pirelike/hlsvault/internal/models"
	"github.com/pirelike/hlsvault/internal/repository"
)

// fakeBlobClient is an in-memory blobclient.Client double recording every
// delete call, so tests can assert on remote cleanup without a real
// platform account.
type fakeBlobClient struct {
	mu      sync.Mutex
	deleted []string
}

var _ blobclient.Client = (*fakeBlobClient)(nil)

func (f *fakeBlobClient) Upload(ctx context.Context, account config.AccountConfig, r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("handle-%s-%d", filename, len(data)), nil
}

func (f *fakeBlobClient) Info(ctx context.Context, account config.AccountConfig, handle string) (blobclient.RemoteFileInfo, error) {
	return blobclient.RemoteFileInfo{}, nil
}

func (f *fakeBlobClient) Download(ctx context.Context, account config.AccountConfig, handle string) (io.ReadCloser, int64, error) {
	return io.NopCloser(strings.NewReader("")), 0, nil
}

func (f *fakeBlobClient) Ping(ctx context.Context, account config.AccountConfig) error {
	return nil
}

func (f *fakeBlobClient) Delete(ctx context.Context, account config.AccountConfig, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeBlobClient) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

func setupCoordinatorTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Video{}, &models.Segment{}, &models.SubtitleTrack{}, &models.Job{})
	require.NoError(t, err)

	return db
}

func testAccounts(n int) []config.AccountConfig {
	accounts := make([]config.AccountConfig, n)
	for i := range accounts {
		accounts[i] = config.AccountConfig{ID: string(rune('a' + i)), Credential: "tok", DestinationID: "dest"}
	}
	return accounts
}

// newTestCoordinator wires a Coordinator against a real sqlite :memory: DB
// and a fake blobclient.Client, with no transcoder/planner/tracker: the
// tests below exercise fail/cleanupUploads, Delete, and resume directly,
// none of which touch Probe/Plan.
func newTestCoordinator(t *testing.T) (*Coordinator, *fakeBlobClient, repository.VideoRepository, repository.SegmentRepository, repository.SubtitleTrackRepository) {
	t.Helper()

	db := setupCoordinatorTestDB(t)
	videos := repository.NewVideoRepository(db)
	segments := repository.NewSegmentRepository(db)
	subtitles := repository.NewSubtitleTrackRepository(db)
	jobs := repository.NewJobRepository(db)

	client := &fakeBlobClient{}
	dist, err := distributor.New(testAccounts(2), client, config.UploadConfig{Concurrency: 4, Retries: 0, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	scratch := t.TempDir()
	c := New(videos, segments, subtitles, jobs, nil, nil, dist, nil, scratch, nil)
	return c, client, videos, segments, subtitles
}

func TestFail_CleansUpCommittedSegmentsAndRemoteHandles(t *testing.T) {
	c, client, videos, segments, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-1", SourceFilename: "movie-1.mkv", Status: models.VideoStatusProcessing}
	require.NoError(t, videos.Create(ctx, video))

	// Simulate an ingest that committed segment rows before a later stage
	// (e.g. the final videos.Update) failed.
	committed := []*models.Segment{
		{VideoID: "movie-1", Ordinal: 0, Filename: "seg0.ts", DurationS: 4, SizeBytes: 100, RemoteHandle: "h0", AccountID: "a"},
		{VideoID: "movie-1", Ordinal: 1, Filename: "seg1.ts", DurationS: 4, SizeBytes: 100, RemoteHandle: "h1", AccountID: "b"},
	}
	require.NoError(t, segments.CreateBatch(ctx, committed))

	job := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-1"}
	job.MarkRunning()

	err := c.fail(ctx, video, job, assertError("commit failed"), nil)
	require.Error(t, err)

	rows, err := segments.GetByVideoID(ctx, "movie-1")
	require.NoError(t, err)
	assert.Empty(t, rows, "committed segment rows must be deleted on failure")

	got, err := videos.GetByID(ctx, "movie-1")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusError, got.Status)

	assert.ElementsMatch(t, []string{"h0", "h1"}, client.deletedHandles())
}

func TestFail_CleansUpUploadedHandlesNeverCommitted(t *testing.T) {
	c, client, videos, segments, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-2", SourceFilename: "movie-2.mkv", Status: models.VideoStatusProcessing}
	require.NoError(t, videos.Create(ctx, video))

	job := &models.Job{Type: models.JobTypeIngest, VideoID: "movie-2"}
	job.MarkRunning()

	// UploadAll succeeded partially before a persistent failure; no segment
	// rows were ever committed.
	uploaded := []distributor.UploadResult{
		{VideoID: "movie-2", Ordinal: 0, Handle: "up0", AccountID: "a"},
		{VideoID: "movie-2", Ordinal: 1, Handle: "up1", AccountID: "b"},
	}

	err := c.fail(ctx, video, job, assertError("upload failed"), uploaded)
	require.Error(t, err)

	rows, err := segments.GetByVideoID(ctx, "movie-2")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.ElementsMatch(t, []string{"up0", "up1"}, client.deletedHandles())
}

func TestDelete_RemovesRowsAndSpawnsRemoteDeletes(t *testing.T) {
	c, client, videos, segments, subtitles := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-3", SourceFilename: "movie-3.mkv", Status: models.VideoStatusActive, TotalSegments: 1}
	require.NoError(t, videos.Create(ctx, video))
	require.NoError(t, segments.CreateBatch(ctx, []*models.Segment{
		{VideoID: "movie-3", Ordinal: 0, Filename: "seg0.ts", DurationS: 4, SizeBytes: 100, RemoteHandle: "sh0", AccountID: "a"},
	}))
	require.NoError(t, subtitles.CreateBatch(ctx, []*models.SubtitleTrack{
		{VideoID: "movie-3", TrackIndex: 0, Language: "eng", RemoteHandle: "th0", AccountID: "b"},
	}))

	require.NoError(t, c.Delete(ctx, "movie-3"))

	_, err := videos.GetByID(ctx, "movie-3")
	assert.Error(t, err, "video row must be gone after delete")

	require.Eventually(t, func() bool {
		return len(client.deletedHandles()) == 2
	}, time.Second, 5*time.Millisecond, "remote handles should be best-effort deleted after commit")
	assert.ElementsMatch(t, []string{"sh0", "th0"}, client.deletedHandles())
}

func TestDelete_IsIdempotentOnSecondCall(t *testing.T) {
	c, _, videos, segments, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-4", SourceFilename: "movie-4.mkv", Status: models.VideoStatusActive}
	require.NoError(t, videos.Create(ctx, video))
	require.NoError(t, segments.CreateBatch(ctx, []*models.Segment{
		{VideoID: "movie-4", Ordinal: 0, Filename: "seg0.ts", DurationS: 4, SizeBytes: 100, RemoteHandle: "h0", AccountID: "a"},
	}))

	require.NoError(t, c.Delete(ctx, "movie-4"))
	err := c.Delete(ctx, "movie-4")
	assert.Error(t, err, "deleting an already-deleted video must report not-found, not succeed silently")
}

func TestResumeOnStartup_ValidManifestResumesDistribution(t *testing.T) {
	c, client, videos, segments, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-5", SourceFilename: "movie-5.mkv", Status: models.VideoStatusProcessing}
	require.NoError(t, videos.Create(ctx, video))

	scratch := filepath.Join(c.scratchDir, "movie-5")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	segPath := filepath.Join(scratch, "segment00000.ts")
	require.NoError(t, os.WriteFile(segPath, []byte("tsdata"), 0o644))

	plan := []ffmpeg.SegmentFile{{Path: segPath, Ordinal: 0, DurationS: 4, SizeBytes: 6}}
	require.NoError(t, writeResumeManifest(scratch, "movie-5", plan))

	require.NoError(t, c.ResumeOnStartup(ctx))

	got, err := videos.GetByID(ctx, "movie-5")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusActive, got.Status, "a valid manifest should resume distribution instead of erroring")

	rows, err := segments.GetByVideoID(ctx, "movie-5")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].Ordinal)
	assert.Empty(t, client.deletedHandles())
}

func TestResumeOnStartup_MissingManifestMarksError(t *testing.T) {
	c, _, videos, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-6", SourceFilename: "movie-6.mkv", Status: models.VideoStatusProcessing}
	require.NoError(t, videos.Create(ctx, video))
	// No scratch directory or manifest is created for this video.

	require.NoError(t, c.ResumeOnStartup(ctx))

	got, err := videos.GetByID(ctx, "movie-6")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusError, got.Status)
	assert.NotEmpty(t, got.LastError)
}

func TestResumeOnStartup_ManifestWithMissingSegmentFileMarksError(t *testing.T) {
	c, _, videos, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	video := &models.Video{VideoID: "movie-7", SourceFilename: "movie-7.mkv", Status: models.VideoStatusProcessing}
	require.NoError(t, videos.Create(ctx, video))

	scratch := filepath.Join(c.scratchDir, "movie-7")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	missingPath := filepath.Join(scratch, "segment00000.ts")
	plan := []ffmpeg.SegmentFile{{Path: missingPath, Ordinal: 0, DurationS: 4, SizeBytes: 6}}
	require.NoError(t, writeResumeManifest(scratch, "movie-7", plan))
	// The manifest references a file that was never written to disk.

	require.NoError(t, c.ResumeOnStartup(ctx))

	got, err := videos.GetByID(ctx, "movie-7")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusError, got.Status)
}

// assertError builds a plain error for tests that only care about fail's
// cleanup side effects, not the wrapped apperrors kind.
func assertError(msg string) error {
	return &testError{msg: msg}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
