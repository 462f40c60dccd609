//go:build !darwin && !linux

package mover

import "os"

func renameNoReplace(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
	}
	return os.Rename(src, dst)
}

// readTimes falls back to the modification time for access time.
func readTimes(path string, info os.FileInfo) fileTimes {
	if info == nil {
		var err error
		if info, err = os.Lstat(path); err != nil {
			return fileTimes{}
		}
	}
	return fileTimes{Access: info.ModTime()}
}
