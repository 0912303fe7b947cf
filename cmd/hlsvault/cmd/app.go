package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pirelike/hlsvault/internal/blobclient"
	"github.com/pirelike/hlsvault/internal/config"
	"github.com/pirelike/hlsvault/internal/coordinator"
	"github.com/pirelike/hlsvault/internal/database"
	"github.com/pirelike/hlsvault/internal/database/migrations"
	"github.com/pirelike/hlsvault/internal/distributor"
	"github.com/pirelike/hlsvault/internal/ffmpeg"
	"github.com/pirelike/hlsvault/internal/planner"
	"github.com/pirelike/hlsvault/internal/progress"
	"github.com/pirelike/hlsvault/internal/repository"
)

// app bundles everything subcommands need to drive the catalog: every
// subcommand (serve, upload, list, delete, db-stats) shares this same
// wiring instead of each hand-rolling its own construction order. The
// segment cache and prefetcher are server-only concerns and are built
// separately in serve.go, since they only matter while something is
// actually streaming segments back out.
type app struct {
	cfg *config.Config
	db  *database.DB

	videos    repository.VideoRepository
	segments  repository.SegmentRepository
	subtitles repository.SubtitleTrackRepository
	jobs      repository.JobRepository

	transcoder  *ffmpeg.Transcoder
	planner     *planner.Planner
	client      blobclient.Client
	distributor *distributor.Distributor
	tracker     *progress.Tracker
	coordinator *coordinator.Coordinator
}

// buildApp loads configuration, opens the database, runs migrations, and
// wires every package the CLI drives, so both the long-running server and
// the one-shot subcommands (upload, list, delete) share one construction
// order.
func buildApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	videos := repository.NewVideoRepository(db.DB)
	segments := repository.NewSegmentRepository(db.DB)
	subtitles := repository.NewSubtitleTrackRepository(db.DB)
	jobs := repository.NewJobRepository(db.DB)

	transcoder := ffmpeg.NewTranscoder(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)

	p := planner.New(transcoder, planner.Config{
		MaxSegmentBytes:      cfg.Planner.MaxSegmentBytes.Int64(),
		MinSegmentDuration:   cfg.Planner.MinSegmentDuration,
		MaxSegmentDuration:   cfg.Planner.MaxSegmentDuration,
		PlanTimeBudget:       cfg.Planner.PlanTimeBudget,
		ReencodeSafetyFactor: cfg.Planner.ReencodeSafetyFactor,
	})

	client := blobclient.New(cfg.Platform, logger)

	dist, err := distributor.New(cfg.Accounts, client, cfg.Upload, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing distributor: %w", err)
	}

	tracker := progress.NewTracker()
	coord := coordinator.New(videos, segments, subtitles, jobs, transcoder, p, dist, tracker, cfg.Storage.ScratchPath(), logger)

	return &app{
		cfg:         cfg,
		db:          db,
		videos:      videos,
		segments:    segments,
		subtitles:   subtitles,
		jobs:        jobs,
		transcoder:  transcoder,
		planner:     p,
		client:      client,
		distributor: dist,
		tracker:     tracker,
		coordinator: coord,
	}, nil
}
