//go:build linux

package mover

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames with RENAME_NOREPLACE so a destination created
// between the existence check and the rename is never clobbered.
func renameNoReplace(src, dst string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	// Filesystems without renameat2 support (some FUSE and network mounts).
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
		if _, statErr := os.Lstat(dst); statErr == nil {
			return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
		}
		return os.Rename(src, dst)
	}
	return &os.LinkError{Op: "rename", Old: src, New: dst, Err: err}
}

// readTimes reads access and birth time with statx. Birth time is only
// reported when the filesystem records it.
func readTimes(path string, info os.FileInfo) fileTimes {
	var stx unix.Statx_t
	mask := unix.STATX_ATIME | unix.STATX_BTIME
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, mask, &stx); err != nil {
		if info != nil {
			return fileTimes{Access: info.ModTime()}
		}
		return fileTimes{}
	}

	t := fileTimes{Access: time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))}
	if stx.Mask&unix.STATX_BTIME != 0 {
		t.Birth = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
		t.HasBirth = true
	}
	return t
}
