package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <recording> <new-name>",
	Short: "Change the display name of a recording",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(nil, false)
		if _, err := svc.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load recordings: %w", err)
		}

		rec, err := svc.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("failed to rename recording: %w", err)
		}
		fmt.Printf("Renamed %s to \"%s\"\n", shortID(rec.ID), rec.Name)
		return nil
	},
}
