package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/config"
)

// Recorder captures audio into a file. One recorder serves one take.
type Recorder interface {
	Start(ctx context.Context, path string) error
	Stop(ctx context.Context) error
}

// Player plays one file. Ended is closed when playback finishes on its own
// or after Stop; Stop may be called more than once.
type Player interface {
	Play(ctx context.Context) error
	Stop() error
	Position() time.Duration
	Ended() <-chan struct{}
}

// Engine creates recorders and players.
type Engine interface {
	NewRecorder() (Recorder, error)
	NewPlayer(path string) (Player, error)
}

// DurationProber reads the length of an existing audio file.
type DurationProber interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// PipeWireEngine records through pw-jack/ffmpeg and plays through an
// external command-line player.
type PipeWireEngine struct {
	cfg       *config.Config
	logWriter io.Writer
	pipewire  *PipeWire
	lookPath  func(string) (string, error)
}

// NewEngine creates the engine for the configured backend. PipeWire is the
// only backend; config validation rejects anything else.
func NewEngine(cfg *config.Config, logWriter io.Writer) Engine {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return newPipeWireEngine(cfg, logWriter)
}

func newPipeWireEngine(cfg *config.Config, logWriter io.Writer) *PipeWireEngine {
	return &PipeWireEngine{
		cfg:       cfg,
		logWriter: logWriter,
		pipewire:  NewPipeWire(),
		lookPath:  exec.LookPath,
	}
}

// NewRecorder checks that the capture tools are installed and returns an idle recorder.
func (e *PipeWireEngine) NewRecorder() (Recorder, error) {
	for _, tool := range []string{"pw-jack", "ffmpeg"} {
		if _, err := e.lookPath(tool); err != nil {
			return nil, fmt.Errorf("%s not found in PATH: %w", tool, err)
		}
	}
	return NewCaptureRecorder(e.cfg, e.pipewire, e.logWriter), nil
}

// NewPlayer picks the first configured player that is installed and can play path.
func (e *PipeWireEngine) NewPlayer(path string) (Player, error) {
	program, err := findAudioPlayer(e.cfg.Playback.Players, path, e.lookPath)
	if err != nil {
		return nil, err
	}
	return NewExecPlayer(program, path), nil
}
