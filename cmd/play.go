package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/audiolibrelab/dictaphone/internal/session"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <recording>",
	Short: "Play a recording",
	Long: `Play a recording with the first available player from the playback.players
list. The recording can be given by its position in 'dictaphone list', its
name, its file name or (a prefix of) its id. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := newService(func(tick session.Tick) {
			fmt.Printf("\r▶ %s", recording.FormatClock(tick.Elapsed))
		}, false)
		defer closeService(svc)

		if _, err := svc.Refresh(cmd.Context()); err != nil {
			return fmt.Errorf("failed to load recordings: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rec, err := svc.Play(ctx, args[0])
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		fmt.Printf("Playing \"%s\" (%s) - press Ctrl+C to stop\n", rec.Name, rec.DurationDisplay())

		poll := time.NewTicker(100 * time.Millisecond)
		defer poll.Stop()
		for {
			select {
			case <-ctx.Done():
				svc.StopPlayback()
				fmt.Println("\nStopped")
				return nil
			case <-poll.C:
				if svc.Status().State != session.Playing {
					fmt.Println("\nFinished")
					return nil
				}
			}
		}
	},
}
