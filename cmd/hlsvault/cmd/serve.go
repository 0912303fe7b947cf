package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pirelike/hlsvault/internal/cache"
	"github.com/pirelike/hlsvault/internal/config"
	internalhttp "github.com/pirelike/hlsvault/internal/http"
	"github.com/pirelike/hlsvault/internal/http/handlers"
	"github.com/pirelike/hlsvault/internal/version"
)

// staleJobRetention bounds how long a completed/failed job row is kept
// around for the progress-poll and listing endpoints before the sweep
// reaps it.
const staleJobRetention = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hlsvault server",
	Long: `Start the hlsvault HTTP server and API.

The server provides:
- A multipart upload endpoint that ingests, transcodes, and distributes a video
- HLS master/media playlists and segment bodies fetched from the remote store
- REST API for catalog management
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, logger)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		a.cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	if err := a.coordinator.ResumeOnStartup(ctx); err != nil {
		logger.Warn("resume on startup failed", slog.String("error", err.Error()))
	}

	segCache, err := newSegmentCache(a.cfg.Cache, a.cfg.Storage.CachePath())
	if err != nil {
		return fmt.Errorf("building segment cache: %w", err)
	}
	fetch := handlers.NewSegmentFetcher(a.segments, a.client, a.distributor.AccountByID)

	prefetcher := cache.NewPrefetcher(segCache, fetch, func(videoID string) (int, bool) {
		v, err := a.videos.GetByID(context.Background(), videoID)
		if err != nil {
			return 0, false
		}
		return v.TotalSegments, true
	}, cache.PrefetcherConfig{
		PreloadSegments:       a.cfg.Cache.PreloadSegments,
		MaxConcurrentPreloads: a.cfg.Cache.MaxConcurrentPreloads,
	}, logger)

	server := internalhttp.NewServer(a.cfg.Server, logger, version.Version)

	videoHandler := handlers.NewVideoHandler(a.videos, a.coordinator)
	videoHandler.Register(server.API())

	uploadHandler := handlers.NewUploadHandler(a.coordinator, a.tracker, a.cfg.Storage.ScratchPath())
	uploadHandler.RegisterRaw(server.Router())

	hlsHandler := handlers.NewHLSHandler(a.videos, a.segments, a.subtitles, segCache, prefetcher, a.client, a.distributor.AccountByID, a.cfg.Public)
	hlsHandler.RegisterRaw(server.Router())

	systemHandler := handlers.NewSystemHandler(segCache, a.db.DB)
	systemHandler.Register(server.API())

	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		if err := a.coordinator.SweepStaleJobs(context.Background(), staleJobRetention); err != nil {
			logger.Warn("stale job sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduling stale job sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting hlsvault server",
		slog.String("host", a.cfg.Server.Host),
		slog.Int("port", a.cfg.Server.Port),
		slog.String("version", version.Version),
		slog.Int("accounts", len(a.cfg.Accounts)),
	)

	return server.ListenAndServe(ctx)
}

// newSegmentCache builds the backend selected by cfg.Type (spec §6's
// CACHE_TYPE). Any value other than "disk" builds the memory backend;
// config.Validate already rejects values other than "memory" and "disk".
func newSegmentCache(cfg config.CacheConfig, cacheDir string) (cache.Cache, error) {
	switch cfg.Type {
	case "disk":
		return cache.NewDiskCache(cacheDir, cfg.Size.Int64(), cfg.TTL)
	default:
		return cache.New(cfg.Size.Int64(), cfg.TTL), nil
	}
}
