package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/dictaphone/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available capture sources",
	Long:  `List all PipeWire/JACK output ports that can be used as audio.capture_sources.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := audio.NewPipeWire()
		sources, err := pw.ListCaptureSources(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get PipeWire sources: %w", err)
		}

		configured := make(map[string]bool, len(cfg.Audio.CaptureSources))
		for _, source := range cfg.Audio.CaptureSources {
			configured[source] = true
		}

		fmt.Printf("🎙️  Capture Sources (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		fmt.Printf("📋 PIPEWIRE/JACK SOURCES (%d found):\n", len(sources))
		for i, source := range sources {
			marker := " "
			if configured[source] {
				marker = "✓"
			}
			fmt.Printf("  %s %d. %s\n", marker, i+1, source)
		}

		for _, source := range cfg.Audio.CaptureSources {
			if !containsString(sources, source) {
				fmt.Printf("\n⚠️  Configured source not available: %s\n", source)
			}
		}

		fmt.Printf("\n💡 PipeWire Usage:\n")
		fmt.Printf("  • Format: \"Device: Audio (hw:X,Y):Z\" or \"client:port\"\n")
		fmt.Printf("  • Example: \"Scarlett 2i2 USB: Audio (hw:1,0):0\"\n")
		fmt.Printf("  • Configure in audio.capture_sources: one entry per channel\n\n")

		return nil
	},
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
