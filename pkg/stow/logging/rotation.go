package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// MaxSize is the size in bytes that triggers rotation. Zero uses 10MB.
	MaxSize int64

	// MaxAge is how many days rotated files are kept, judged by the timestamp
	// in their name. Zero disables age cleanup.
	MaxAge int

	// MaxBackups is how many rotated files are kept. Zero keeps all (subject to MaxAge).
	MaxBackups int

	// Daily rotates on the first write after midnight.
	Daily bool
}

// DefaultRotationConfig returns sensible defaults for rotation.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

// rotatedTimeFormat is the timestamp embedded in rotated file names.
const rotatedTimeFormat = "2006-01-02-150405"

// RotatingWriter is an io.WriteCloser that rotates by size and day. Writes are
// serialized in-process by a mutex and across processes by a sidecar flock,
// since a watch-mode process and a one-shot command may share the log.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu       sync.Mutex
	file     *os.File
	size     int64
	opened   time.Time
	fileLock *flock.Flock
	now      func() time.Time
}

// NewRotatingWriter opens (creating if needed) the log at path.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		cfg:      cfg,
		fileLock: flock.New(path + ".lock"),
		now:      time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Write appends p, rotating first when needed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.due(int64(len(p))) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	if err := w.fileLock.Lock(); err != nil {
		return 0, fmt.Errorf("locking log file: %w", err)
	}
	defer func() { _ = w.fileLock.Unlock() }()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	_ = w.fileLock.Close()
	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	w.opened = info.ModTime()
	if w.size == 0 {
		w.opened = w.now()
	}
	return nil
}

func (w *RotatingWriter) due(incoming int64) bool {
	if w.size > 0 && w.size+incoming > w.cfg.MaxSize {
		return true
	}
	if w.cfg.Daily {
		now := w.now()
		y1, m1, d1 := now.Date()
		y2, m2, d2 := w.opened.Date()
		return y1 != y2 || m1 != m2 || d1 != d2
	}
	return false
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	if err := os.Rename(w.path, w.backupName(w.now())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.opened = w.now()
	w.prune()
	return nil
}

// backupName is the rotated name for a file closed at t: stow.log becomes
// stow.2006-01-02-150405.log.
func (w *RotatingWriter) backupName(t time.Time) string {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext) + "." + t.Format(rotatedTimeFormat) + ext
}

type backup struct {
	path    string
	rotated time.Time
}

// backups returns the rotated files next to the log, newest first. Files
// whose embedded timestamp does not parse are not ours and are left alone.
func (w *RotatingWriter) backups() []backup {
	dir, base := filepath.Split(w.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil
	}
	var out []backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem) || !strings.HasSuffix(name, ext) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, stem), ext)
		at, err := time.ParseInLocation(rotatedTimeFormat, stamp, time.Local)
		if err != nil {
			continue
		}
		out = append(out, backup{path: filepath.Join(dir, name), rotated: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rotated.After(out[j].rotated) })
	return out
}

// Rotated lists rotated log files, newest first.
func (w *RotatingWriter) Rotated() []string {
	var paths []string
	for _, b := range w.backups() {
		paths = append(paths, b.path)
	}
	return paths
}

// prune keeps at most MaxBackups files rotated within MaxAge days. Removal
// errors are ignored; the next rotation retries.
func (w *RotatingWriter) prune() {
	cutoff := time.Time{}
	if w.cfg.MaxAge > 0 {
		cutoff = w.now().AddDate(0, 0, -w.cfg.MaxAge)
	}
	for i, b := range w.backups() {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		if tooMany || b.rotated.Before(cutoff) {
			_ = os.Remove(b.path)
		}
	}
}
