package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/audiolibrelab/dictaphone/internal/session"
	"github.com/gofrs/flock"

	"github.com/spf13/cobra"
)

const lockFileName = ".dictaphone.lock"

var (
	recordName string
	recordFor  time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the configured capture sources",
	Long: `Record audio from the configured capture sources into a new file in the
recordings directory. Press Enter or Ctrl+C to stop. The take is added to
the recordings list with its measured duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Output.Directory
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create recordings directory: %w", err)
		}

		// Only one recording process per directory
		lock := flock.New(filepath.Join(dir, lockFileName))
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return faults.Wrap(faults.ErrResourceBusy, "record", "lock", "another dictaphone is already recording into "+dir, nil)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("Failed to release recording lock", "error", err)
			}
		}()

		svc := newService(func(tick session.Tick) {
			fmt.Printf("\r● REC %s", recording.FormatClock(tick.Elapsed))
		}, false)
		defer closeService(svc)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		path, err := svc.Record(ctx, recordName)
		if err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		if recordFor > 0 {
			fmt.Printf("Recording to %s for %s - press Enter or Ctrl+C to stop early\n", path, recordFor)
		} else {
			fmt.Printf("Recording to %s - press Enter or Ctrl+C to stop\n", path)
		}

		waitForStop(ctx, recordFor)
		fmt.Println()
		slog.Info("Stopping recording...")

		rec, err := svc.Stop(context.Background())
		if rec != nil {
			fmt.Printf("✅ Saved \"%s\" (%s) to %s\n", rec.Name, rec.DurationDisplay(), rec.FilePath)
		}
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}
		return nil
	},
}

// waitForStop returns on Enter, on a signal or once limit has elapsed
func waitForStop(ctx context.Context, limit time.Duration) {
	enter := make(chan struct{})
	go func() {
		// A closed stdin must not end the take
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			close(enter)
		}
	}()

	var deadline <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
	case <-enter:
	case <-deadline:
	}
}

func init() {
	recordCmd.Flags().StringVarP(&recordName, "name", "n", "", "name for the recording (default is derived from the start time)")
	recordCmd.Flags().DurationVarP(&recordFor, "duration", "d", 0, "stop automatically after this long (e.g. 30s, 5m)")
}
