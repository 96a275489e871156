// Package session implements the recording/playback state machine. A Session
// owns at most one recorder or one player at a time, and every transition,
// ticker emission and end-of-media event goes through the session mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/audio"
	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/audiolibrelab/dictaphone/internal/permission"
	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/spf13/afero"
)

// State is the activity the session is currently performing.
type State int

const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Recording:
		return "RECORDING"
	case Playing:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Capture describes a finished take, ready to be registered.
type Capture struct {
	FilePath  string
	Duration  time.Duration
	StartedAt time.Time
}

// Empty reports whether c is the NothingToStop result.
func (c Capture) Empty() bool {
	return c.FilePath == ""
}

// NothingToStop is returned by StopRecording when no recording is active.
var NothingToStop = Capture{}

// Tick is emitted periodically while recording or playing.
type Tick struct {
	State   State
	Path    string
	Elapsed time.Duration
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State      State
	ActivePath string
	Target     *recording.Recording
	StartedAt  time.Time
	Elapsed    time.Duration
}

// Options configures a Session. Engine is required.
type Options struct {
	Fs      afero.Fs
	Engine  audio.Engine
	Checker permission.Checker

	Dir    string
	Prefix string
	Ext    string

	TickInterval time.Duration
	// OnTick runs with the session locked and must not call back into the Session.
	OnTick func(Tick)
	Now    func() time.Time
}

// Session is the recording/playback state machine.
type Session struct {
	fs           afero.Fs
	engine       audio.Engine
	checker      permission.Checker
	dir          string
	prefix       string
	ext          string
	tickInterval time.Duration
	onTick       func(Tick)
	now          func() time.Time

	mutex      sync.Mutex
	state      State
	activePath string
	startedAt  time.Time
	target     *recording.Recording
	recorder   audio.Recorder
	player     audio.Player
	generation uint64
	cancel     context.CancelFunc
	lastStamp  time.Time

	workers sync.WaitGroup
}

// New creates an idle session.
func New(opts Options) *Session {
	s := &Session{
		fs:           opts.Fs,
		engine:       opts.Engine,
		checker:      opts.Checker,
		dir:          opts.Dir,
		prefix:       opts.Prefix,
		ext:          opts.Ext,
		tickInterval: opts.TickInterval,
		onTick:       opts.OnTick,
		now:          opts.Now,
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.checker == nil {
		s.checker = permission.AllowAll()
	}
	if s.prefix == "" {
		s.prefix = "Recording"
	}
	if s.ext == "" {
		s.ext = "wav"
	}
	if s.tickInterval <= 0 {
		s.tickInterval = time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// StartRecording begins a new take and returns its file path. Calling it
// while already recording returns the active path with an error marked
// faults.ErrInvalidTransition. Active playback is stopped first.
func (s *Session) StartRecording(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == Recording {
		return s.activePath, faults.Wrap(faults.ErrInvalidTransition, "session", "start recording", "already recording", nil)
	}

	if err := permission.Ensure(ctx, s.checker); err != nil {
		slog.Warn("Recording not permitted", "error", err)
		return "", err
	}

	if s.state == Playing {
		slog.Debug("Stopping playback before recording")
		s.releasePlaybackLocked()
	}

	recorder, err := s.engine.NewRecorder()
	if err != nil {
		return "", faults.Wrap(faults.ErrResourceBusy, "session", "start recording", "recorder unavailable", err)
	}

	now := s.now()
	path, err := s.allocatePathLocked(now)
	if err != nil {
		return "", faults.Wrap(faults.ErrIOFailure, "session", "start recording", "cannot allocate file", err)
	}

	if err := recorder.Start(ctx, path); err != nil {
		return "", faults.Wrap(faults.ErrResourceBusy, "session", "start recording", "capture failed to start", err)
	}

	s.recorder = recorder
	s.activePath = path
	s.startedAt = now
	s.state = Recording
	activityCtx := s.beginActivityLocked()

	s.workers.Add(1)
	go s.runTicker(activityCtx, Recording, s.generation)

	slog.Info("Recording started", "path", path)
	return path, nil
}

// StopRecording finishes the active take. When nothing is recording it
// returns NothingToStop and a nil error. If the recorder fails to finalize,
// the capture is still returned alongside an error.
func (s *Session) StopRecording(ctx context.Context) (Capture, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != Recording {
		return NothingToStop, nil
	}
	return s.stopRecordingLocked(ctx)
}

func (s *Session) stopRecordingLocked(ctx context.Context) (Capture, error) {
	duration := s.now().Sub(s.startedAt)
	if duration < 0 {
		duration = 0
	}
	capture := Capture{
		FilePath:  s.activePath,
		Duration:  duration,
		StartedAt: s.startedAt,
	}

	recorder := s.recorder
	s.recorder = nil
	s.endActivityLocked()

	if err := recorder.Stop(ctx); err != nil {
		return capture, faults.Wrap(faults.ErrIOFailure, "session", "stop recording", capture.FilePath, err)
	}

	slog.Info("Recording stopped", "path", capture.FilePath, "duration", capture.Duration)
	return capture, nil
}

// StartPlayback plays rec. It is rejected with faults.ErrRecordingActive
// while recording; any previous playback is stopped first.
func (s *Session) StartPlayback(ctx context.Context, rec recording.Recording) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == Recording {
		return faults.Wrap(faults.ErrRecordingActive, "session", "start playback", "stop the recording first", nil)
	}

	if _, err := s.fs.Stat(rec.FilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return faults.Wrap(faults.ErrFileNotFound, "session", "start playback", rec.FilePath, err)
		}
		return faults.Wrap(faults.ErrIOFailure, "session", "start playback", rec.FilePath, err)
	}

	if s.state == Playing {
		slog.Debug("Replacing active playback", "previous", s.target.FilePath, "next", rec.FilePath)
		s.releasePlaybackLocked()
	}

	player, err := s.engine.NewPlayer(rec.FilePath)
	if err != nil {
		return faults.Wrap(faults.ErrResourceBusy, "session", "start playback", "player unavailable", err)
	}
	if err := player.Play(ctx); err != nil {
		player.Stop()
		return faults.Wrap(faults.ErrResourceBusy, "session", "start playback", rec.FilePath, err)
	}

	target := rec
	s.player = player
	s.target = &target
	s.startedAt = s.now()
	s.state = Playing
	activityCtx := s.beginActivityLocked()

	s.workers.Add(2)
	go s.runTicker(activityCtx, Playing, s.generation)
	go s.watchEnded(activityCtx, s.generation, player)

	slog.Info("Playback started", "path", rec.FilePath)
	return nil
}

// StopPlayback stops the active playback and reports whether there was one.
func (s *Session) StopPlayback() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state != Playing {
		return false
	}
	s.releasePlaybackLocked()
	return true
}

// releasePlaybackLocked detaches the player and stops it exactly once
func (s *Session) releasePlaybackLocked() {
	player := s.player
	path := s.target.FilePath
	s.player = nil
	s.endActivityLocked()

	if player == nil {
		return
	}
	if err := player.Stop(); err != nil {
		slog.Warn("Failed to release player", "path", path, "error", err)
	}
	slog.Info("Playback stopped", "path", path)
}

// watchEnded turns the player's end-of-media signal into a stop transition
func (s *Session) watchEnded(ctx context.Context, gen uint64, player audio.Player) {
	defer s.workers.Done()

	select {
	case <-ctx.Done():
		return
	case <-player.Ended():
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != Playing || s.generation != gen {
		return
	}
	slog.Debug("Playback reached end of media", "path", s.target.FilePath)
	s.releasePlaybackLocked()
}

func (s *Session) runTicker(ctx context.Context, want State, gen uint64) {
	defer s.workers.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mutex.Lock()
		if s.state != want || s.generation != gen {
			s.mutex.Unlock()
			return
		}
		if s.onTick != nil {
			s.onTick(Tick{State: s.state, Path: s.currentPathLocked(), Elapsed: s.elapsedLocked()})
		}
		s.mutex.Unlock()
	}
}

// beginActivityLocked starts a new generation and returns its context
func (s *Session) beginActivityLocked() context.Context {
	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return ctx
}

// endActivityLocked cancels the workers of the current generation and returns to Idle
func (s *Session) endActivityLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = Idle
	s.activePath = ""
	s.target = nil
	s.startedAt = time.Time{}
}

// Close stops whatever is active and waits for background workers. A
// recording in progress is stopped and its capture returned so the partial
// file can still be registered.
func (s *Session) Close(ctx context.Context) (Capture, error) {
	s.mutex.Lock()
	capture := NothingToStop
	var err error
	switch s.state {
	case Recording:
		capture, err = s.stopRecordingLocked(ctx)
	case Playing:
		s.releasePlaybackLocked()
	}
	s.mutex.Unlock()

	s.workers.Wait()
	return capture, err
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snap := Snapshot{
		State:      s.state,
		ActivePath: s.activePath,
		StartedAt:  s.startedAt,
		Elapsed:    s.elapsedLocked(),
	}
	if s.target != nil {
		target := *s.target
		snap.Target = &target
	}
	return snap
}

func (s *Session) currentPathLocked() string {
	if s.target != nil {
		return s.target.FilePath
	}
	return s.activePath
}

func (s *Session) elapsedLocked() time.Duration {
	switch s.state {
	case Recording:
		if d := s.now().Sub(s.startedAt); d > 0 {
			return d
		}
	case Playing:
		if s.player != nil {
			return s.player.Position()
		}
	}
	return 0
}

// allocatePathLocked names a new take <dir>/<prefix>_<timestamp>.<ext>. The
// timestamp never repeats within a session and existing files get a numeric suffix.
func (s *Session) allocatePathLocked(now time.Time) (string, error) {
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}

	stamp := now.Truncate(time.Millisecond)
	if !stamp.After(s.lastStamp) {
		stamp = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = stamp

	base := fmt.Sprintf("%s_%s", s.prefix, stamp.Format("20060102_150405.000"))
	candidate := filepath.Join(s.dir, base+"."+s.ext)
	for i := 1; ; i++ {
		_, err := s.fs.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(s.dir, fmt.Sprintf("%s-%d.%s", base, i, s.ext))
	}
}
