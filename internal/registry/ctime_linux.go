//go:build linux

package registry

import (
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// creationTime prefers the birth time reported by statx and falls back to
// the modification time when the filesystem does not record one.
func creationTime(fs afero.Fs, path string, info os.FileInfo) time.Time {
	if _, ok := fs.(*afero.OsFs); !ok {
		return info.ModTime()
	}

	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}
