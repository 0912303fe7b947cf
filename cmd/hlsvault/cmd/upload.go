package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/pirelike/hlsvault/internal/apperrors"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Ingest a video file through the full pipeline",
	Long: `Ingest a video file from local disk: probe it, plan its HLS
segmentation, transcode and upload the segments across the configured
accounts, and register the result in the catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, slog.Default())
	if err != nil {
		return err
	}

	jobID := ulid.Make().String()
	video, err := a.coordinator.Ingest(ctx, args[0], jobID)
	if err != nil {
		if appErr, ok := err.(*apperrors.Error); ok {
			return fmt.Errorf("%s: %s", appErr.Kind, appErr.Detail)
		}
		return err
	}

	fmt.Printf("video_id=%s status=%s segments=%d bytes=%d duration=%.1fs\n",
		video.VideoID, video.Status, video.TotalSegments, video.TotalBytes, video.DurationS)
	return nil
}
