package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove list entries whose audio files are gone",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(nil, false)
		n, err := svc.Prune(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to prune index: %w", err)
		}
		if n == 0 {
			fmt.Println("Nothing to prune")
			return nil
		}
		fmt.Printf("Removed %d stale entries from %s\n", n, cfg.Output.IndexFile)
		return nil
	},
}
