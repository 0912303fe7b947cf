package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pirelike/hlsvault/pkg/format"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog videos",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, slog.Default())
	if err != nil {
		return err
	}

	videos, err := a.videos.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing videos: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "VIDEO_ID\tSTATUS\tSEGMENTS\tSIZE\tDURATION_S")
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\n", v.VideoID, v.Status, format.Number(int64(v.TotalSegments)), format.Bytes(v.TotalBytes), v.DurationS)
	}
	return nil
}
