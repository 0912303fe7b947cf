package cache

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/pirelike/hlsvault/internal/models"
)

// PrefetcherConfig bounds lookahead and background parallelism.
type PrefetcherConfig struct {
	PreloadSegments       int
	MaxConcurrentPreloads int
}

// TrackLookup returns the ordinals that exist for a video, used to avoid
// scheduling prefetch past the end of the track.
type TrackLookup func(videoID string) (totalSegments int, ok bool)

// Prefetcher schedules speculative background fetches of the next N
// sequential ordinals after any cache miss, holding a back-reference to the
// cache by handle rather than owning it (spec §9's cyclic-ownership note).
type Prefetcher struct {
	cache  Cache
	fetch  FetchFunc
	lookup TrackLookup
	cfg    PrefetcherConfig
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewPrefetcher creates a Prefetcher bound to cache by reference.
func NewPrefetcher(cache Cache, fetch FetchFunc, lookup TrackLookup, cfg PrefetcherConfig, logger *slog.Logger) *Prefetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentPreloads < 1 {
		cfg.MaxConcurrentPreloads = 1
	}
	return &Prefetcher{
		cache:  cache,
		fetch:  fetch,
		lookup: lookup,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentPreloads)),
		logger: logger,
	}
}

// ScheduleNext enqueues background prefetch of the next N sequential
// ordinals after ordinal for videoID. Jobs that would exceed the per-pool
// concurrency budget are skipped rather than queued, so prefetch never
// competes with foreground fetches for a slot beyond the pool's idle
// capacity. A job is a no-op if the key is already cached.
func (p *Prefetcher) ScheduleNext(ctx context.Context, videoID string, ordinal int) {
	total, ok := p.lookup(videoID)
	if !ok {
		return
	}

	for i := 1; i <= p.cfg.PreloadSegments; i++ {
		next := ordinal + i
		if next >= total {
			break
		}
		key := models.SegmentKey{VideoID: videoID, Ordinal: next}
		if _, cached := p.cache.Peek(key); cached {
			continue
		}
		if !p.sem.TryAcquire(1) {
			// Pool is fully busy with foreground work or other prefetch
			// jobs; skip rather than block. A later miss will retry.
			continue
		}
		go p.runJob(ctx, key)
	}
}

func (p *Prefetcher) runJob(ctx context.Context, key models.SegmentKey) {
	defer p.sem.Release(1)

	_, err := p.cache.Get(ctx, key, p.fetch)
	if err != nil {
		p.prefetchFailureInc()
		p.logger.Debug("prefetch failed",
			slog.String("video_id", key.VideoID),
			slog.Int("ordinal", key.Ordinal),
			slog.Any("error", err))
		return
	}
	p.prefetchSuccessInc()
}

func (p *Prefetcher) prefetchSuccessInc() { p.cache.RecordPrefetchSuccess() }
func (p *Prefetcher) prefetchFailureInc() { p.cache.RecordPrefetchFailure() }
