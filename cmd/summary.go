package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// summaryCmd prints a digest of recent operation outcomes from the status
// files. Intended for the daily report cron entry.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a digest of recent backup and restore outcomes",
	Long: `Print a digest of operation outcomes recorded over the last 24 hours.

Examples:
  hostbackup summary`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		s, err := app.Summary()
		if err != nil {
			return fmt.Errorf("failed to summarize status files: %w", err)
		}

		fmt.Printf("Operations (last 24h): %d\n", s.Operations)
		fmt.Printf("  %s %d\n", color.GreenString("succeeded:"), s.Succeeded)
		fmt.Printf("  %s %d\n", color.YellowString("partial:  "), s.Partial)
		fmt.Printf("  %s %d\n", color.RedString("failed:   "), s.Failed)
		if s.Unfinished > 0 {
			fmt.Printf("  %s %d\n", color.YellowString("running:  "), s.Unfinished)
		}

		usage, err := app.StorageUsage()
		if err != nil {
			return fmt.Errorf("failed to total manifest usage: %w", err)
		}
		if len(usage) > 0 {
			fmt.Println("\nTracked storage:")
			for _, u := range usage {
				fmt.Printf("  %-20s %3d artifacts  %s  (%s)\n",
					u.ScheduleID, u.Entries, formatBytes(u.Bytes), u.Destination)
			}
		}
		return nil
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
