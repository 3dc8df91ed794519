package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cleanupCmd removes status files older than the configured retention
// window. Safe to run from cron alongside the engine cycle.
var cleanupCmd = &cobra.Command{
	Use:          "cleanup",
	Short:        "Remove status files past the retention window",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		removed, err := app.Cleanup()
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Removed %d status file(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
