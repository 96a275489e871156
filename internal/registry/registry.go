// Package registry keeps the ordered list of recordings in sync with the
// recordings directory and the YAML index that stores their metadata.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/audio"
	"github.com/audiolibrelab/dictaphone/internal/faults"
	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
)

// Options configures a Registry.
type Options struct {
	Fs         afero.Fs
	Dir        string
	IndexPath  string
	Extensions []string

	// Prober, when set, measures files that have no recorded duration.
	Prober audio.DurationProber
	Now    func() time.Time
}

// Registry is the newest-first view of all known recordings.
type Registry struct {
	fs        afero.Fs
	dir       string
	indexPath string
	exts      map[string]bool
	prober    audio.DurationProber
	now       func() time.Time

	// indexLock guards the index against other dictaphone processes. It is
	// nil for in-memory filesystems.
	indexLock *flock.Flock

	mutex      sync.Mutex
	recordings []recording.Recording
	orphans    []string
}

// New creates a registry. Call Reload to populate it.
func New(opts Options) *Registry {
	r := &Registry{
		fs:        opts.Fs,
		dir:       filepath.Clean(opts.Dir),
		indexPath: filepath.Clean(opts.IndexPath),
		exts:      make(map[string]bool),
		prober:    opts.Prober,
		now:       opts.Now,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if _, ok := r.fs.(*afero.OsFs); ok {
		r.indexLock = flock.New(r.indexPath + ".lock")
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{"wav", "flac", "mp3"}
	}
	for _, ext := range exts {
		r.exts["."+strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return r
}

// Dir returns the recordings directory.
func (r *Registry) Dir() string {
	return r.dir
}

// List returns the recordings from the last reload, newest first.
func (r *Registry) List() []recording.Recording {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]recording.Recording(nil), r.recordings...)
}

// Orphans returns the index paths whose files no longer exist.
func (r *Registry) Orphans() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.orphans...)
}

// Reload rebuilds the list from the directory and the index.
func (r *Registry) Reload(ctx context.Context) ([]recording.Recording, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) ([]recording.Recording, error) {
	doc, err := readIndex(r.fs, r.indexPath)
	if err != nil {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "reload", "", err)
	}

	byPath := make(map[string]string, len(doc.Recordings))
	for id, e := range doc.Recordings {
		byPath[filepath.Clean(e.Path)] = id
	}

	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "reload", "cannot scan "+r.dir, err)
	}

	seen := make(map[string]bool, len(entries))
	list := make([]recording.Recording, 0, len(entries))
	for _, info := range entries {
		if !r.isRecordingFile(info) {
			continue
		}
		path := filepath.Join(r.dir, info.Name())
		seen[path] = true

		if id, ok := byPath[path]; ok {
			list = append(list, r.fromIndex(id, doc.Recordings[id], info))
			continue
		}
		list = append(list, r.fromScan(ctx, path, info))
	}

	var orphans []string
	for path := range byPath {
		if seen[path] {
			continue
		}
		if _, err := r.fs.Stat(path); errors.Is(err, os.ErrNotExist) {
			orphans = append(orphans, path)
		}
	}
	sort.Strings(orphans)
	if len(orphans) > 0 {
		slog.Debug("Index entries without files", "count", len(orphans))
	}

	sortNewestFirst(list)
	r.recordings = list
	r.orphans = orphans
	return r.snapshotLocked(), nil
}

func (r *Registry) snapshotLocked() []recording.Recording {
	return append([]recording.Recording(nil), r.recordings...)
}

func (r *Registry) isRecordingFile(info os.FileInfo) bool {
	name := info.Name()
	if info.IsDir() || strings.HasPrefix(name, ".") {
		return false
	}
	return r.exts[strings.ToLower(filepath.Ext(name))]
}

func (r *Registry) fromIndex(id string, e indexEntry, info os.FileInfo) recording.Recording {
	path := filepath.Join(r.dir, info.Name())
	rec := recording.Recording{
		ID:        id,
		Name:      e.Name,
		FilePath:  path,
		Duration:  e.duration(),
		CreatedAt: e.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = creationTime(r.fs, path, info)
	}
	if rec.Name == "" {
		rec.Name = recording.DefaultName(rec.CreatedAt)
	}
	return rec
}

func (r *Registry) fromScan(ctx context.Context, path string, info os.FileInfo) recording.Recording {
	rec := recording.Recording{
		ID:        recording.ScanID(path),
		Name:      recording.NameFromPath(path),
		FilePath:  path,
		Duration:  recording.UnknownDuration,
		CreatedAt: creationTime(r.fs, path, info),
	}
	if r.prober != nil {
		if d, err := r.prober.Probe(ctx, path); err == nil {
			rec.Duration = d
		} else {
			slog.Debug("Could not probe duration", "file", path, "error", err)
		}
	}
	return rec
}

// sortNewestFirst orders by creation time, then by file name, both descending
func sortNewestFirst(list []recording.Recording) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return filepath.Base(list[i].FilePath) > filepath.Base(list[j].FilePath)
	})
}

// Add stores rec in the index and reloads. Missing id, name and creation
// time are filled in. Any previous entry for the same file is replaced.
func (r *Registry) Add(ctx context.Context, rec recording.Recording) ([]recording.Recording, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if rec.FilePath == "" {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "add", "recording has no file path", nil)
	}
	rec.FilePath = filepath.Clean(rec.FilePath)
	if rec.ID == "" {
		rec.ID = recording.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.Name == "" {
		rec.Name = recording.DefaultName(rec.CreatedAt)
	}

	unlock, err := r.lockIndex(ctx)
	if err != nil {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "add", rec.FilePath, err)
	}
	err = r.mutateIndexLocked(func(doc *indexDocument) error {
		for _, id := range doc.idsForPath(rec.FilePath) {
			delete(doc.Recordings, id)
		}
		doc.Recordings[rec.ID] = entryFromRecording(rec)
		return nil
	})
	unlock()
	if err != nil {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "add", rec.FilePath, err)
	}

	slog.Info("Recording registered", "id", rec.ID, "path", rec.FilePath, "duration", rec.Duration)
	return r.reloadLocked(ctx)
}

// Remove deletes the file at filePath and then its index entries. If the
// file cannot be deleted the entry is kept and the error returned.
func (r *Registry) Remove(ctx context.Context, filePath string) ([]recording.Recording, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	path := filepath.Clean(filePath)
	unlock, err := r.lockIndex(ctx)
	if err != nil {
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "remove", path, err)
	}
	defer unlock()

	if err := r.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.snapshotLocked(), faults.Wrap(faults.ErrFileNotFound, "registry", "remove", path, err)
		}
		return r.snapshotLocked(), faults.Wrap(faults.ErrIOFailure, "registry", "remove", path, err)
	}
	slog.Info("Recording file deleted", "path", path)

	err = r.mutateIndexLocked(func(doc *indexDocument) error {
		for _, id := range doc.idsForPath(path) {
			delete(doc.Recordings, id)
		}
		return nil
	})
	if err != nil {
		// The file is gone; the stale entry shows up as an orphan until pruned.
		list, _ := r.reloadLocked(ctx)
		return list, faults.Wrap(faults.ErrIOFailure, "registry", "remove", "file deleted but index not updated", err)
	}

	return r.reloadLocked(ctx)
}

// Rename changes the display name of the recording matching key.
func (r *Registry) Rename(ctx context.Context, key, name string) (recording.Recording, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return recording.Recording{}, fmt.Errorf("name cannot be empty")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	rec, err := findIn(r.recordings, key)
	if err != nil {
		return recording.Recording{}, err
	}
	rec.Name = name

	unlock, err := r.lockIndex(ctx)
	if err != nil {
		return rec, faults.Wrap(faults.ErrIOFailure, "registry", "rename", rec.FilePath, err)
	}
	err = r.mutateIndexLocked(func(doc *indexDocument) error {
		for _, id := range doc.idsForPath(rec.FilePath) {
			if id != rec.ID {
				delete(doc.Recordings, id)
			}
		}
		doc.Recordings[rec.ID] = entryFromRecording(rec)
		return nil
	})
	unlock()
	if err != nil {
		return rec, faults.Wrap(faults.ErrIOFailure, "registry", "rename", rec.FilePath, err)
	}

	if _, err := r.reloadLocked(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

// Prune drops index entries whose files no longer exist and returns how many were removed.
func (r *Registry) Prune(ctx context.Context) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	unlock, err := r.lockIndex(ctx)
	if err != nil {
		return 0, faults.Wrap(faults.ErrIOFailure, "registry", "prune", "", err)
	}
	removed := 0
	err = r.mutateIndexLocked(func(doc *indexDocument) error {
		for id, e := range doc.Recordings {
			if _, err := r.fs.Stat(e.Path); errors.Is(err, os.ErrNotExist) {
				delete(doc.Recordings, id)
				removed++
			}
		}
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	unlock()
	if err != nil {
		return 0, faults.Wrap(faults.ErrIOFailure, "registry", "prune", "", err)
	}

	if removed > 0 {
		slog.Info("Pruned index entries", "count", removed)
	}
	_, err = r.reloadLocked(ctx)
	return removed, err
}

var errNoChange = errors.New("no change")

// lockIndex takes the cross-process index lock, waiting until ctx is done.
func (r *Registry) lockIndex(ctx context.Context) (func(), error) {
	if r.indexLock == nil {
		return func() {}, nil
	}
	if err := r.fs.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	locked, err := r.indexLock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("waiting for index lock %s: %w", r.indexLock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("index lock %s is held by another process", r.indexLock.Path())
	}
	return func() {
		if err := r.indexLock.Unlock(); err != nil {
			slog.Warn("Failed to release index lock", "path", r.indexLock.Path(), "error", err)
		}
	}, nil
}

// mutateIndexLocked reads the index, applies fn to a copy and writes it back.
// fn returning errNoChange skips the write.
func (r *Registry) mutateIndexLocked(fn func(doc *indexDocument) error) error {
	current, err := readIndex(r.fs, r.indexPath)
	if err != nil {
		return err
	}
	next := current.clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	return writeIndex(r.fs, r.indexPath, next)
}

// Find returns the recording matching key from the last reload.
func (r *Registry) Find(key string) (recording.Recording, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return findIn(r.recordings, key)
}

// findIn matches key against, in order: id, path, file name, display name,
// 1-based list position and finally a unique id prefix.
func findIn(list []recording.Recording, key string) (recording.Recording, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return recording.Recording{}, fmt.Errorf("recording key is empty")
	}

	for _, rec := range list {
		if rec.ID == key {
			return rec, nil
		}
	}
	for _, rec := range list {
		if rec.FilePath == filepath.Clean(key) || filepath.Base(rec.FilePath) == key {
			return rec, nil
		}
	}

	fold := cases.Fold()
	foldedKey := fold.String(key)
	var named []recording.Recording
	for _, rec := range list {
		if fold.String(rec.Name) == foldedKey {
			named = append(named, rec)
		}
	}
	if len(named) == 1 {
		return named[0], nil
	}
	if len(named) > 1 {
		return recording.Recording{}, fmt.Errorf("%d recordings are named %q, use the id instead", len(named), key)
	}

	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(list) {
		return list[n-1], nil
	}

	var prefixed []recording.Recording
	for _, rec := range list {
		if strings.HasPrefix(rec.ID, key) {
			prefixed = append(prefixed, rec)
		}
	}
	switch len(prefixed) {
	case 1:
		return prefixed[0], nil
	case 0:
		return recording.Recording{}, faults.Wrap(faults.ErrFileNotFound, "registry", "find", "no recording matches "+key, nil)
	default:
		return recording.Recording{}, fmt.Errorf("id prefix %q is ambiguous", key)
	}
}
