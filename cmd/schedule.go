package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect and manage backup schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List configured schedules with their next run time",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		schedules, err := app.ListSchedules()
		if err != nil {
			return err
		}
		if len(schedules) == 0 {
			fmt.Println("No schedules configured")
			return nil
		}

		for _, s := range schedules {
			state := color.GreenString("enabled")
			if !s.Enabled {
				state = color.YellowString("disabled")
			}
			next := "pending first evaluation"
			if !s.NextRun.IsZero() {
				next = s.NextRun.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  %s  %s  next=%s  retention=%d\n",
				color.CyanString(s.ID), s.Frequency, state, next, s.Retention)
			if s.LastStatus != "" {
				fmt.Printf("    last: %s at %s\n", s.LastStatus, s.LastRun.Format("2006-01-02 15:04"))
			}
		}
		return nil
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <schedule-id>",
	Short: "Delete a schedule and its retention manifest",
	Long: `Delete a schedule and its retention manifest. Artifacts already uploaded
to the destination are left in place; they are no longer tracked and will not
be pruned.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}
		if err := app.DeleteSchedule(args[0]); err != nil {
			return fmt.Errorf("failed to delete schedule %s: %w", args[0], err)
		}
		fmt.Printf("Deleted schedule %s\n", args[0])
		return nil
	},
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	rootCmd.AddCommand(scheduleCmd)
}
