package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	backupAccounts    []string
	backupDestination string
	backupUser        string
	backupQueueOnly   bool
)

// backupCmd queues an immediate backup. Manual backups land in the manual
// manifest and are never pruned by retention.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Queue an immediate backup of one or more accounts",
	Long: `Queue an immediate backup of one or more accounts to a configured
destination. By default the job is executed right away; with --queue-only it
waits for the next engine cycle.

Examples:
  # Back up two accounts now
  hostbackup backup --account alice --account bob --destination offsite-s3

  # Queue only; the cron cycle will pick it up
  hostbackup backup --account carol --destination local-disk --queue-only`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(backupAccounts) == 0 {
			return fmt.Errorf("at least one --account is required")
		}
		if backupDestination == "" {
			return fmt.Errorf("--destination is required")
		}

		app, err := buildApplication()
		if err != nil {
			return err
		}

		jobID, err := app.EnqueueBackup(backupAccounts, backupDestination, backupUser)
		if err != nil {
			return fmt.Errorf("failed to queue backup: %w", err)
		}
		fmt.Printf("Queued backup job %s (%d account(s) -> %s)\n",
			color.CyanString(jobID), len(backupAccounts), backupDestination)

		if backupQueueOnly {
			return nil
		}
		return app.RunCycle(cmd.Context())
	},
}

func init() {
	backupCmd.Flags().StringArrayVar(&backupAccounts, "account", nil, "account to back up (repeatable)")
	backupCmd.Flags().StringVar(&backupDestination, "destination", "", "destination ID from the destinations file")
	backupCmd.Flags().StringVar(&backupUser, "user", currentUser(), "user recorded as the job owner")
	backupCmd.Flags().BoolVar(&backupQueueOnly, "queue-only", false, "queue the job without running a dispatch cycle")

	rootCmd.AddCommand(backupCmd)
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "root"
}
