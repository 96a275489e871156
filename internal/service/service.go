package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/audio"
	"github.com/audiolibrelab/dictaphone/internal/config"
	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/audiolibrelab/dictaphone/internal/permission"
	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/audiolibrelab/dictaphone/internal/registry"
	"github.com/audiolibrelab/dictaphone/internal/session"
	"github.com/spf13/afero"
)

// Service represents the dictaphone actions available to the user interface
type Service interface {
	// Recording operations
	Record(ctx context.Context, name string) (string, error)
	Stop(ctx context.Context) (*recording.Recording, error)

	// Playback operations
	Play(ctx context.Context, key string) (recording.Recording, error)
	StopPlayback() bool

	// Library operations
	Refresh(ctx context.Context) ([]recording.Recording, error)
	Recordings() []recording.Recording
	Find(key string) (recording.Recording, error)
	Orphans() []string
	Delete(ctx context.Context, key string) (recording.Recording, error)
	Rename(ctx context.Context, key, name string) (recording.Recording, error)
	Prune(ctx context.Context) (int, error)

	// Information operations
	Status() session.Snapshot
	GetConfig() *config.Config
	GetLastError() string

	Close(ctx context.Context) error
}

// Dependencies are the collaborators a DictaphoneService is built from.
// Zero values are replaced by the system implementations.
type Dependencies struct {
	Fs      afero.Fs
	Engine  audio.Engine
	Checker permission.Checker
	Prober  audio.DurationProber
	OnTick  func(session.Tick)
	Now     func() time.Time
}

// DictaphoneService is the main service implementation
type DictaphoneService struct {
	cfg      *config.Config
	session  *session.Session
	registry *registry.Registry

	// Name for the take currently being recorded
	pendingName string
	pendingMu   sync.Mutex

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*DictaphoneService)(nil)

// New creates a new dictaphone service instance
func New(cfg *config.Config, logWriter io.Writer, deps Dependencies) *DictaphoneService {
	if logWriter == nil {
		logWriter = io.Discard
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Engine == nil {
		deps.Engine = audio.NewEngine(cfg, logWriter)
	}
	if deps.Checker == nil {
		deps.Checker = &permission.System{
			Fs:      deps.Fs,
			Ports:   audio.NewPipeWire(),
			Sources: cfg.Audio.CaptureSources,
			Dir:     cfg.Output.Directory,
		}
	}

	return &DictaphoneService{
		cfg: cfg,
		session: session.New(session.Options{
			Fs:           deps.Fs,
			Engine:       deps.Engine,
			Checker:      deps.Checker,
			Dir:          cfg.Output.Directory,
			Prefix:       cfg.Output.FilePrefix,
			Ext:          cfg.Output.Format,
			TickInterval: cfg.Playback.TickInterval,
			OnTick:       deps.OnTick,
			Now:          deps.Now,
		}),
		registry: registry.New(registry.Options{
			Fs:         deps.Fs,
			Dir:        cfg.Output.Directory,
			IndexPath:  cfg.Output.IndexFile,
			Extensions: cfg.Extensions,
			Prober:     deps.Prober,
			Now:        deps.Now,
		}),
	}
}

// Record starts a new take. An empty name lets the registry derive one from the creation time.
func (s *DictaphoneService) Record(ctx context.Context, name string) (string, error) {
	slog.Debug("Service.Record called", "name", name)
	path, err := s.session.StartRecording(ctx)
	if err != nil {
		if faults.IsBenign(err) {
			slog.Debug("Already recording", "path", path)
			return path, err
		}
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return "", err
	}

	s.pendingMu.Lock()
	s.pendingName = name
	s.pendingMu.Unlock()

	s.clearLastError()
	return path, nil
}

// Stop ends the take and registers it. It returns nil when nothing was recording.
func (s *DictaphoneService) Stop(ctx context.Context) (*recording.Recording, error) {
	capture, err := s.session.StopRecording(ctx)
	if capture.Empty() {
		return nil, nil
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Recording may be incomplete: %v", err))
	}

	rec, addErr := s.register(ctx, capture)
	if addErr != nil {
		s.setLastError(fmt.Sprintf("Failed to save recording: %v", addErr))
		return nil, addErr
	}
	if err == nil {
		s.clearLastError()
	}
	return rec, err
}

// register stores a finished capture and returns it as listed by the registry
func (s *DictaphoneService) register(ctx context.Context, capture session.Capture) (*recording.Recording, error) {
	s.pendingMu.Lock()
	name := s.pendingName
	s.pendingName = ""
	s.pendingMu.Unlock()

	rec := recording.Recording{
		ID:        recording.NewID(),
		Name:      name,
		FilePath:  capture.FilePath,
		Duration:  capture.Duration,
		CreatedAt: capture.StartedAt,
	}
	if _, err := s.registry.Add(ctx, rec); err != nil {
		return nil, err
	}

	stored, err := s.registry.Find(rec.ID)
	if err != nil {
		// The file was not produced, the entry is kept for a later prune
		slog.Warn("Registered recording is not on disk", "path", rec.FilePath)
		return &rec, nil
	}
	return &stored, nil
}

// Play starts playback of the recording matching key
func (s *DictaphoneService) Play(ctx context.Context, key string) (recording.Recording, error) {
	rec, err := s.registry.Find(key)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to play %s: %v", key, err))
		return recording.Recording{}, err
	}

	if err := s.session.StartPlayback(ctx, rec); err != nil {
		s.setLastError(fmt.Sprintf("Failed to play %s: %v", rec.Name, err))
		return rec, err
	}
	s.clearLastError()
	return rec, nil
}

// StopPlayback stops the current playback, if any
func (s *DictaphoneService) StopPlayback() bool {
	return s.session.StopPlayback()
}

// Refresh reloads the recordings list
func (s *DictaphoneService) Refresh(ctx context.Context) ([]recording.Recording, error) {
	list, err := s.registry.Reload(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to load recordings: %v", err))
		return list, err
	}
	return list, nil
}

// Recordings returns the list from the last refresh
func (s *DictaphoneService) Recordings() []recording.Recording {
	return s.registry.List()
}

// Find looks up a recording by id, id prefix, name, file or list position
func (s *DictaphoneService) Find(key string) (recording.Recording, error) {
	return s.registry.Find(key)
}

// Orphans returns index paths whose files are missing
func (s *DictaphoneService) Orphans() []string {
	return s.registry.Orphans()
}

// Delete removes the recording matching key, stopping its playback first
func (s *DictaphoneService) Delete(ctx context.Context, key string) (recording.Recording, error) {
	rec, err := s.registry.Find(key)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete %s: %v", key, err))
		return recording.Recording{}, err
	}

	snap := s.session.Snapshot()
	switch {
	case snap.State == session.Recording && snap.ActivePath == rec.FilePath:
		err := faults.Wrap(faults.ErrRecordingActive, "service", "delete", "recording is still being written", nil)
		s.setLastError(err.Error())
		return rec, err
	case snap.State == session.Playing && snap.Target != nil && snap.Target.FilePath == rec.FilePath:
		s.session.StopPlayback()
	}

	if _, err := s.registry.Remove(ctx, rec.FilePath); err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete %s: %v", rec.Name, err))
		return rec, err
	}
	s.clearLastError()
	return rec, nil
}

// Rename sets a new display name
func (s *DictaphoneService) Rename(ctx context.Context, key, name string) (recording.Recording, error) {
	rec, err := s.registry.Rename(ctx, key, name)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to rename %s: %v", key, err))
		return rec, err
	}
	s.clearLastError()
	return rec, nil
}

// Prune removes index entries whose files are gone
func (s *DictaphoneService) Prune(ctx context.Context) (int, error) {
	n, err := s.registry.Prune(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to prune index: %v", err))
	}
	return n, err
}

// Status returns the session state
func (s *DictaphoneService) Status() session.Snapshot {
	return s.session.Snapshot()
}

// GetConfig returns the current configuration
func (s *DictaphoneService) GetConfig() *config.Config {
	return s.cfg
}

// Close stops any activity. A recording in progress is stopped and registered.
func (s *DictaphoneService) Close(ctx context.Context) error {
	capture, err := s.session.Close(ctx)
	if capture.Empty() {
		return err
	}
	if err != nil {
		slog.Warn("Recording interrupted", "path", capture.FilePath, "error", err)
	}
	if _, addErr := s.register(ctx, capture); addErr != nil {
		return addErr
	}
	return err
}

// GetLastError returns the last error message (thread-safe)
func (s *DictaphoneService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *DictaphoneService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *DictaphoneService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
