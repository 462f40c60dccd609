//go:build darwin

package mover

import (
	"os"
	"syscall"
	"time"
)

func renameNoReplace(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
	}
	return os.Rename(src, dst)
}

// readTimes uses the birth time from the stat structure.
func readTimes(path string, info os.FileInfo) fileTimes {
	if info == nil {
		var err error
		if info, err = os.Lstat(path); err != nil {
			return fileTimes{}
		}
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileTimes{Access: info.ModTime()}
	}
	return fileTimes{
		Access:   time.Unix(stat.Atimespec.Sec, stat.Atimespec.Nsec),
		Birth:    time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec),
		HasBirth: true,
	}
}
