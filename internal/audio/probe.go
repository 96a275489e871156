package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// FFprobe reads durations with ffprobe.
type FFprobe struct {
	run commandRunner
}

// NewFFprobe creates a prober that shells out to ffprobe.
func NewFFprobe() *FFprobe {
	return &FFprobe{run: execRunner}
}

// Probe returns the container duration of path.
func (f *FFprobe) Probe(ctx context.Context, path string) (time.Duration, error) {
	output, err := f.run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_entries", "format=duration",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	d, err := parseProbeDuration(output)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	slog.Debug("Probed duration", "file", path, "duration", d)
	return d, nil
}

func parseProbeDuration(output []byte) (time.Duration, error) {
	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(probeResult.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("duration not reported")
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
