package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/config"
)

const (
	captureClient   = "dictaphone_capture"
	stopGracePeriod = 5 * time.Second
	portWaitTimeout = 5 * time.Second
)

// CaptureRecorder records the configured capture sources with ffmpeg running
// as a JACK client under pw-jack.
type CaptureRecorder struct {
	cfg       *config.Config
	logWriter io.Writer
	pipewire  *PipeWire

	mutex      sync.Mutex
	ffmpegCmd  *exec.Cmd
	outputFile string
	exited     chan error
	cancelLink context.CancelFunc
	linkDone   chan struct{}

	bufMutex  sync.Mutex
	stderrBuf strings.Builder
}

// NewCaptureRecorder creates an idle recorder.
func NewCaptureRecorder(cfg *config.Config, pipewire *PipeWire, logWriter io.Writer) *CaptureRecorder {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &CaptureRecorder{
		cfg:       cfg,
		logWriter: logWriter,
		pipewire:  pipewire,
	}
}

// Start launches ffmpeg writing to path and links the capture sources to it.
func (r *CaptureRecorder) Start(ctx context.Context, path string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ffmpegCmd != nil {
		return fmt.Errorf("recorder already running for %s", r.outputFile)
	}

	args := buildFFmpegArgs(r.cfg, path)
	slog.Info("Starting capture", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), "PIPEWIRE_QUANTUM=256/48000", "PIPEWIRE_LATENCY=256/48000")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.ffmpegCmd = cmd
	r.outputFile = path
	r.bufMutex.Lock()
	r.stderrBuf.Reset()
	r.bufMutex.Unlock()

	var pipes sync.WaitGroup
	pipes.Add(2)
	go r.readOutput(stdout, nil, "stdout", &pipes)
	go r.readOutput(stderr, &r.stderrBuf, "stderr", &pipes)

	r.exited = make(chan error, 1)
	go func() {
		pipes.Wait()
		r.exited <- cmd.Wait()
	}()

	if err := r.awaitStartup(ctx, cmd); err != nil {
		r.ffmpegCmd = nil
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Debug("Could not remove partial capture file", "path", path, "error", rmErr)
		}
		return err
	}

	// The remaining sources are linked in the background
	linkCtx, cancel := context.WithCancel(context.Background())
	r.cancelLink = cancel
	r.linkDone = make(chan struct{})
	go r.linkSources(linkCtx, r.cfg.Audio.CaptureSources, r.linkDone)

	return nil
}

// awaitStartup waits until ffmpeg has registered its first JACK input. It
// fails if the process exits first or the port never shows up.
func (r *CaptureRecorder) awaitStartup(ctx context.Context, cmd *exec.Cmd) error {
	firstPort := fmt.Sprintf("%s:input_1", captureClient)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	portReady := make(chan error, 1)
	go func() {
		portReady <- r.pipewire.WaitForPort(waitCtx, firstPort, portWaitTimeout)
	}()

	select {
	case err := <-r.exited:
		if err == nil {
			err = errors.New("exited with status 0")
		}
		r.bufMutex.Lock()
		output := strings.TrimSpace(r.stderrBuf.String())
		r.bufMutex.Unlock()
		slog.Error("ffmpeg exited during startup", "error", err, "stderr", output)
		return fmt.Errorf("ffmpeg exited during startup: %w (output: %s)", err, output)

	case err := <-portReady:
		if err == nil {
			return nil
		}
		slog.Error("ffmpeg JACK port did not appear", "port", firstPort, "error", err)
		cmd.Process.Kill()
		<-r.exited
		return fmt.Errorf("capture client did not register %s: %w", firstPort, err)
	}
}

// linkSources connects each capture source to the matching ffmpeg input
func (r *CaptureRecorder) linkSources(ctx context.Context, sources []string, done chan struct{}) {
	defer close(done)

	for i, source := range sources {
		destPort := fmt.Sprintf("%s:input_%d", captureClient, i+1)

		if err := r.pipewire.WaitForPort(ctx, destPort, portWaitTimeout); err != nil {
			slog.Error("ffmpeg JACK port did not appear", "port", destPort, "error", err)
			continue
		}

		if err := r.pipewire.ConnectPortsWithRetry(ctx, source, destPort); err != nil {
			slog.Error("Failed to connect capture source", "source", source, "dest", destPort, "error", err)
			continue
		}
		slog.Info("Connected capture source", "source", source, "dest", destPort)
	}
}

// Stop interrupts ffmpeg so it finalizes the file, then validates the output.
func (r *CaptureRecorder) Stop(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ffmpegCmd == nil {
		return nil
	}

	if r.cancelLink != nil {
		r.cancelLink()
		<-r.linkDone
		r.cancelLink = nil
	}

	for i, source := range r.cfg.Audio.CaptureSources {
		destPort := fmt.Sprintf("%s:input_%d", captureClient, i+1)
		if err := r.pipewire.DisconnectPorts(ctx, source, destPort); err != nil {
			slog.Debug("Capture source was not linked", "source", source, "error", err)
		}
	}

	err := r.stopFFmpeg(ctx)
	r.ffmpegCmd = nil
	if err != nil {
		return err
	}

	return validateOutputFile(r.outputFile)
}

// readOutput drains a pipe, buffering it when buffer is set
func (r *CaptureRecorder) readOutput(pipe io.Reader, buffer *strings.Builder, label string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if buffer != nil {
			r.bufMutex.Lock()
			buffer.WriteString(line + "\n")
			r.bufMutex.Unlock()
		}
		fmt.Fprintln(r.logWriter, line)
		slog.Debug("ffmpeg output", "stream", label, "line", line)
	}
}

// stopFFmpeg sends SIGINT and waits for a clean exit before killing
func (r *CaptureRecorder) stopFFmpeg(ctx context.Context) error {
	proc := r.ffmpegCmd.Process
	slog.Debug("Sending SIGINT to ffmpeg process")
	if err := proc.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to ffmpeg, killing", "error", err)
		proc.Kill()
	}

	select {
	case err := <-r.exited:
		if err != nil && !isInterruptExit(err) {
			r.bufMutex.Lock()
			slog.Debug("ffmpeg stderr", "output", r.stderrBuf.String())
			r.bufMutex.Unlock()
			return fmt.Errorf("ffmpeg process failed: %w", err)
		}
		slog.Debug("ffmpeg exited")
		return nil

	case <-ctx.Done():
		proc.Kill()
		<-r.exited
		return fmt.Errorf("stopping ffmpeg: %w", ctx.Err())

	case <-time.After(stopGracePeriod):
		slog.Warn("ffmpeg did not exit within timeout, force killing")
		proc.Kill()
		<-r.exited
		return nil
	}
}

// isInterruptExit reports whether ffmpeg ended because it was interrupted
func isInterruptExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// ffmpeg exits with 255 after handling SIGINT
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		return state == "signal: interrupt" || state == "signal: killed"
	}
	return false
}

// buildFFmpegArgs constructs the capture command line
func buildFFmpegArgs(cfg *config.Config, outputFile string) []string {
	channels := cfg.Audio.Channels
	if channels < 1 {
		channels = 1
	}
	if channels > 2 {
		channels = 2
	}

	return []string{
		"pw-jack",
		"ffmpeg",
		"-hide_banner",
		"-nostdin",
		"-f", "jack",
		"-channels", fmt.Sprintf("%d", channels),
		"-i", captureClient,
		"-ar", fmt.Sprintf("%d", cfg.Audio.SampleRate),
		"-c:a", codecFor(cfg.Output.Format),
		"-y",
		outputFile,
	}
}

// codecFor maps an output format to the ffmpeg encoder
func codecFor(format string) string {
	switch format {
	case "flac":
		return "flac"
	case "mp3":
		return "libmp3lame"
	default:
		return "pcm_s16le"
	}
}

// validateOutputFile checks that ffmpeg left a non-empty file behind
func validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("recording failed: %s is empty", path)
	}
	slog.Debug("Capture output validated", "file", path, "size", info.Size())
	return nil
}
