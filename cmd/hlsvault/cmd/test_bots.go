package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var testBotsCmd = &cobra.Command{
	Use:   "test-bots",
	Short: "Ping every configured account against the remote platform",
	Long: `Ping every configured account's credential against the remote
chat/file platform and report whether each one is reachable. Exits
non-zero if any account fails to respond.`,
	RunE: runTestBots,
}

func init() {
	rootCmd.AddCommand(testBotsCmd)
}

func runTestBots(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, slog.Default())
	if err != nil {
		return err
	}

	failed := 0
	for _, account := range a.cfg.Accounts {
		err := a.client.Ping(ctx, account)
		if err != nil {
			failed++
			fmt.Printf("%-24s FAIL  %s\n", account.ID, err)
			continue
		}
		fmt.Printf("%-24s OK\n", account.ID)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d accounts unreachable\n", failed, len(a.cfg.Accounts))
		os.Exit(1)
	}
	return nil
}
