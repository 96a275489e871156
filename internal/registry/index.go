package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/dictaphone/internal/recording"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const indexVersion = 1

// indexDocument is the on-disk metadata file, keyed by recording id.
type indexDocument struct {
	Version    int                   `yaml:"version"`
	Recordings map[string]indexEntry `yaml:"recordings"`
}

type indexEntry struct {
	Name       string    `yaml:"name"`
	Path       string    `yaml:"path"`
	DurationMS int64     `yaml:"duration_ms"`
	CreatedAt  time.Time `yaml:"created_at"`
}

func newIndexDocument() *indexDocument {
	return &indexDocument{Version: indexVersion, Recordings: make(map[string]indexEntry)}
}

func entryFromRecording(rec recording.Recording) indexEntry {
	ms := int64(-1)
	if rec.DurationKnown() {
		ms = rec.Duration.Milliseconds()
	}
	return indexEntry{
		Name:       rec.Name,
		Path:       rec.FilePath,
		DurationMS: ms,
		CreatedAt:  rec.CreatedAt,
	}
}

func (e indexEntry) duration() time.Duration {
	if e.DurationMS < 0 {
		return recording.UnknownDuration
	}
	return time.Duration(e.DurationMS) * time.Millisecond
}

// clone returns a deep copy so a failed write never leaks into the caller's view
func (d *indexDocument) clone() *indexDocument {
	c := newIndexDocument()
	c.Version = d.Version
	for id, e := range d.Recordings {
		c.Recordings[id] = e
	}
	return c
}

// idsForPath returns every entry id that points at path
func (d *indexDocument) idsForPath(path string) []string {
	var ids []string
	for id, e := range d.Recordings {
		if filepath.Clean(e.Path) == path {
			ids = append(ids, id)
		}
	}
	return ids
}

// readIndex loads the index. A missing file is an empty index; a leftover
// temporary file from an interrupted write is never read.
func readIndex(fs afero.Fs, path string) (*indexDocument, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newIndexDocument(), nil
		}
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}

	doc := newIndexDocument()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}
	if doc.Version > indexVersion {
		return nil, fmt.Errorf("index %s has unsupported version %d", path, doc.Version)
	}
	if doc.Recordings == nil {
		doc.Recordings = make(map[string]indexEntry)
	}
	return doc, nil
}

// writeIndex replaces the index with doc by writing a temporary sibling and
// renaming it over the target.
func writeIndex(fs afero.Fs, path string, doc *indexDocument) error {
	doc.Version = indexVersion
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to replace index %s: %w", path, err)
	}
	return nil
}
