package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExecPlayer plays a file by running a command-line audio player.
type ExecPlayer struct {
	program string
	path    string

	mutex   sync.Mutex
	cmd     *exec.Cmd
	started time.Time
	stopped bool
	ended   chan struct{}
}

// NewExecPlayer prepares program to play path.
func NewExecPlayer(program, path string) *ExecPlayer {
	return &ExecPlayer{
		program: program,
		path:    path,
		ended:   make(chan struct{}),
	}
}

// Play starts the player process and returns without waiting for it.
func (p *ExecPlayer) Play(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cmd != nil || p.stopped {
		return fmt.Errorf("player already used for %s", p.path)
	}

	args, err := playerArgs(p.program, p.path)
	if err != nil {
		return err
	}

	cmd := exec.Command(p.program, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", p.program, err)
	}

	p.cmd = cmd
	p.started = time.Now()
	slog.Debug("Player started", "player", p.program, "file", p.path, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		p.mutex.Lock()
		stopped := p.stopped
		p.mutex.Unlock()
		if err != nil && !stopped {
			slog.Warn("Player exited with error", "player", p.program, "error", err)
		} else {
			slog.Debug("Player exited", "player", p.program, "stopped", stopped)
		}
		close(p.ended)
	}()

	return nil
}

// Stop kills the player process. Calling it again is a no-op.
func (p *ExecPlayer) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	if p.cmd == nil || p.cmd.Process == nil {
		close(p.ended)
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop %s: %w", p.program, err)
	}
	return nil
}

// Position returns the time elapsed since playback started.
func (p *ExecPlayer) Position() time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Ended is closed once the player process has exited.
func (p *ExecPlayer) Ended() <-chan struct{} {
	return p.ended
}

// playerArgs returns the arguments that make program play path and exit
func playerArgs(program, path string) ([]string, error) {
	switch program {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "error", path}, nil
	case "mpv":
		return []string{"--no-video", "--really-quiet", path}, nil
	case "vlc":
		return []string{"-I", "dummy", "--play-and-exit", path}, nil
	case "aplay":
		return []string{"-q", path}, nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", program)
	}
}

// findAudioPlayer returns the first installed player able to handle path
func findAudioPlayer(players []string, path string, lookPath func(string) (string, error)) (string, error) {
	isWav := strings.EqualFold(filepath.Ext(path), ".wav")

	for _, player := range players {
		// aplay only handles WAV files
		if player == "aplay" && !isWav {
			continue
		}
		if _, err := lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}
