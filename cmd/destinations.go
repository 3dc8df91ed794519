package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var destinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "Inspect configured backup destinations",
}

var destinationsListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List configured destinations",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}

		dests, err := app.ListDestinations()
		if err != nil {
			return err
		}
		if len(dests) == 0 {
			fmt.Println("No destinations configured")
			return nil
		}

		for _, d := range dests {
			state := color.GreenString("enabled")
			if !d.Enabled {
				state = color.YellowString("disabled")
			}
			enc := ""
			if d.Encrypt {
				enc = "  encrypted"
			}
			fmt.Printf("%s  %-6s  %s%s\n", color.CyanString(d.ID), d.Type, state, enc)
		}
		return nil
	},
}

var destinationsTestCmd = &cobra.Command{
	Use:          "test <destination-id>",
	Short:        "Verify that a destination is reachable and writable",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}
		if err := app.TestDestination(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("destination %s failed: %w", args[0], err)
		}
		fmt.Printf("%s destination %s is reachable\n", color.GreenString("OK"), args[0])
		return nil
	},
}

func init() {
	destinationsCmd.AddCommand(destinationsListCmd)
	destinationsCmd.AddCommand(destinationsTestCmd)
	rootCmd.AddCommand(destinationsCmd)
}
