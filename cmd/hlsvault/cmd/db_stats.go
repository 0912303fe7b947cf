package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/cobra"

	"github.com/pirelike/hlsvault/pkg/format"
)

var dbStatsCmd = &cobra.Command{
	Use:   "db-stats",
	Short: "Print database connection pool and scratch-disk statistics",
	Long: `Print GORM connection pool stats and the free/total space on the
scratch directory's filesystem, used to sanity-check headroom before
ingesting a large file.`,
	RunE: runDBStats,
}

func init() {
	rootCmd.AddCommand(dbStatsCmd)
}

func runDBStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, slog.Default())
	if err != nil {
		return err
	}

	dbStats, err := a.db.Stats()
	if err != nil {
		return fmt.Errorf("getting database stats: %w", err)
	}

	out := map[string]interface{}{"database": dbStats}

	if usage, err := disk.UsageWithContext(ctx, a.cfg.Storage.ScratchPath()); err == nil {
		out["scratch_disk"] = map[string]interface{}{
			"path":         a.cfg.Storage.ScratchPath(),
			"total":        format.Bytes(int64(usage.Total)),
			"free":         format.Bytes(int64(usage.Free)),
			"used_percent": format.Percentage(usage.UsedPercent, 1),
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
