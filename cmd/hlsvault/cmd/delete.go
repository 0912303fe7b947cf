package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pirelike/hlsvault/internal/apperrors"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <video-id>",
	Short: "Delete a catalog video and its remote segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, slog.Default())
	if err != nil {
		return err
	}

	if err := a.coordinator.Delete(ctx, args[0]); err != nil {
		if appErr, ok := err.(*apperrors.Error); ok {
			return fmt.Errorf("%s: %s", appErr.Kind, appErr.Detail)
		}
		return err
	}

	fmt.Printf("deleted %s\n", args[0])
	return nil
}
