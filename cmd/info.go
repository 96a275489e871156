package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved configuration and file locations",
	Long:  `Display the resolved configuration with inheritance indicators and the paths dictaphone reads and writes. Shows which values are inherited from default vs profile-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Display file paths
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("config_file: %s\n", cfgFile)
		fmt.Printf("recordings: %s\n", cfg.Output.Directory)
		fmt.Printf("index_file: %s\n", cfg.Output.IndexFile)
		fmt.Printf("lock_file: %s\n", filepath.Join(cfg.Output.Directory, lockFileName))
		fmt.Printf("next_file: %s\n", filepath.Join(cfg.Output.Directory, cfg.Output.FilePrefix+"_YYYYMMDD_HHMMSS.mmm."+cfg.Output.Format))

		// Display resolved configuration with inheritance indicators
		fmt.Printf("\n=== RESOLVED CONFIGURATION ===\n")
		inh := cfg.Inheritance

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, getInheritanceIndicator(inh.Audio.SampleRate))
		fmt.Printf("channels: %d %s\n", cfg.Audio.Channels, getInheritanceIndicator(inh.Audio.Channels))
		fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, getInheritanceIndicator(inh.Audio.Backend))
		fmt.Printf("capture_sources: %s %s\n", strings.Join(cfg.Audio.CaptureSources, ", "), getInheritanceIndicator(inh.Audio.CaptureSources))

		fmt.Printf("\n[Output]\n")
		fmt.Printf("directory: %s %s\n", cfg.Output.Directory, getInheritanceIndicator(inh.Output.Directory))
		fmt.Printf("index_file: %s %s\n", cfg.Output.IndexFile, getInheritanceIndicator(inh.Output.IndexFile))
		fmt.Printf("format: %s %s\n", cfg.Output.Format, getInheritanceIndicator(inh.Output.Format))
		fmt.Printf("file_prefix: %s %s\n", cfg.Output.FilePrefix, getInheritanceIndicator(inh.Output.FilePrefix))

		fmt.Printf("\n[Playback]\n")
		fmt.Printf("players: %s %s\n", strings.Join(cfg.Playback.Players, ", "), getInheritanceIndicator(inh.Playback.Players))
		fmt.Printf("tick_interval: %s %s\n", cfg.Playback.TickInterval, getInheritanceIndicator(inh.Playback.TickInterval))

		fmt.Printf("\nextensions: %s\n", strings.Join(cfg.Extensions, ", "))
		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[default]"
	}
}
