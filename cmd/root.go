package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/dictaphone/internal/audio"
	"github.com/audiolibrelab/dictaphone/internal/config"
	"github.com/audiolibrelab/dictaphone/internal/service"
	"github.com/audiolibrelab/dictaphone/internal/session"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "dictaphone",
	Short: "Record, list, play and delete voice recordings",
	Long: `Dictaphone is a CLI voice recorder for PipeWire desktops.

It records the configured capture source to a file, keeps a list of
recordings with their names and durations, plays them back and deletes
them again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// An explicit config file must exist; the default one is optional
		required := cfgFile != ""
		if cfgFile == "" {
			cfgFile = defaultConfigPath()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile, required)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dictaphone.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output, 3=max tracing")

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(infoCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/dictaphone.yaml")
}

// newService wires the system collaborators for one command invocation
func newService(onTick func(session.Tick), probe bool) *service.DictaphoneService {
	var logWriter io.Writer
	if verboseLevel >= 2 {
		logWriter = os.Stderr
	}

	deps := service.Dependencies{OnTick: onTick}
	if probe {
		deps.Prober = audio.NewFFprobe()
	}
	return service.New(cfg, logWriter, deps)
}

// closeService tears svc down, logging failures since the command result is
// already decided
func closeService(svc interface{ Close(context.Context) error }) {
	if err := svc.Close(context.Background()); err != nil {
		slog.Warn("Failed to shut down cleanly", "error", err)
	}
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1:
		slogLevel = slog.LevelDebug
	case 2, 3:
		// Level 2 and 3 both use Debug level for slog
		// Level 3 will additionally set environment variables
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
		os.Setenv("FFMPEG_LOGLEVEL", "debug")
	}
}
