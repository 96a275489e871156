package recording

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownDuration marks a recording whose length was never measured.
const UnknownDuration time.Duration = -1

// scanNamespace seeds deterministic ids for files found on disk without
// index metadata.
var scanNamespace = uuid.MustParse("5b0f6a4e-2f5c-4d59-9a59-0d1c7e6f3a21")

// Recording describes one captured audio file.
type Recording struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	FilePath  string        `json:"file_path" yaml:"file_path"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// NewID returns a fresh random recording id.
func NewID() string {
	return uuid.NewString()
}

// ScanID returns the stable id used for a file discovered by a directory scan.
func ScanID(path string) string {
	return uuid.NewSHA1(scanNamespace, []byte(filepath.Clean(path))).String()
}

// DefaultName derives a display label from a creation time.
func DefaultName(createdAt time.Time) string {
	return "Recording " + createdAt.Format("2006-01-02 15:04:05")
}

// NameFromPath returns the file name without its extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DurationKnown reports whether Duration was measured.
func (r Recording) DurationKnown() bool {
	return r.Duration >= 0
}

// DurationDisplay formats the duration as mm:ss.
func (r Recording) DurationDisplay() string {
	if !r.DurationKnown() {
		return "--:--"
	}
	return FormatClock(r.Duration)
}

// DateDisplay formats the creation time as dd.MM.yyyy HH:mm.
func (r Recording) DateDisplay() string {
	return r.CreatedAt.Format("02.01.2006 15:04")
}

// FormatClock renders d as mm:ss. Minutes widen past two digits for long takes.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
