//go:build !linux

package registry

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

func creationTime(fs afero.Fs, path string, info os.FileInfo) time.Time {
	return info.ModTime()
}
