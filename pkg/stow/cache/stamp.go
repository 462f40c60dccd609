package cache

import "os"

// Stamp is the file identity a cached digest is bound to. Rewriting a file
// in place changes its ctime even when size and mtime are forced back, and
// a different file moved onto the same path has a different inode.
type Stamp struct {
	Size  int64
	Mtime int64 // UnixNano
	Ctime int64 // UnixNano; zero where the platform does not report it
	Inode uint64
}

// StampOf builds the stamp for info as returned by os.Stat.
func StampOf(info os.FileInfo) Stamp {
	s := Stamp{Size: info.Size(), Mtime: info.ModTime().UnixNano()}
	if ctime, ino, ok := changeTime(info); ok {
		s.Ctime = ctime.UnixNano()
		s.Inode = ino
	}
	return s
}
