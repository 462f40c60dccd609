// Package watcher notifies when files arrive in the Inbox. A path is handed
// on only after its size has stopped changing.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Stability controls how long a file must stay the same size before it is
// considered fully written.
type Stability struct {
	Samples  int
	Interval time.Duration
}

// DefaultStability samples three times one second apart.
var DefaultStability = Stability{Samples: 3, Interval: time.Second}

// ErrVanished is returned by WaitStable when the file disappears.
var ErrVanished = errors.New("file vanished while waiting")

// Options configures a Watcher.
type Options struct {
	// Exclude filters paths that must never be reported, such as the
	// Duplicates holding area.
	Exclude   *scanner.Excluder
	Stability Stability
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root    string
	opts    Options
	watcher *fsnotify.Watcher
	log     *logging.Logger

	mu      sync.Mutex
	paths   map[string]bool
	pending map[string]bool
	closed  bool
	waiters sync.WaitGroup
}

// New creates a Watcher on root and registers every directory under it.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Stability.Samples < 1 {
		opts.Stability.Samples = DefaultStability.Samples
	}
	if opts.Stability.Interval <= 0 {
		opts.Stability.Interval = DefaultStability.Interval
	}

	abs := scanner.Canonical(root)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "watch", root, err)
	}
	if !info.IsDir() {
		return nil, types.Wrap(types.ErrConfiguration, "watch", root, errors.New("not a directory"))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, types.Wrap(types.ErrIO, "watch", root, err)
	}
	w := &Watcher{
		root:    abs,
		opts:    opts,
		watcher: fsw,
		log:     logging.Get("watcher"),
		paths:   make(map[string]bool),
		pending: make(map[string]bool),
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, types.Wrap(types.ErrIO, "watch", root, err)
	}
	return w, nil
}

// Root returns the watched root.
func (w *Watcher) Root() string { return w.root }

// Run blocks until ctx is cancelled, calling onReady for every regular file
// that is created or written and then holds a stable size. onReady may be
// called from several goroutines at once.
func (w *Watcher) Run(ctx context.Context, onReady func(path string)) error {
	defer w.waiters.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event, onReady)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, onReady func(string)) {
	path := event.Name
	if w.opts.Exclude.Match(path) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.unwatch(path)
		return
	case event.Op&(fsnotify.Create|fsnotify.Write) == 0:
		return
	}

	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = w.addTree(path)
			w.announceExisting(ctx, path, onReady)
		}
		return
	}
	if info.Mode().IsRegular() {
		w.settle(ctx, path, onReady)
	}
}

// announceExisting covers files that landed in a new directory before its
// watch was registered.
func (w *Watcher) announceExisting(ctx context.Context, dir string, onReady func(string)) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best effort
		}
		if w.opts.Exclude.Match(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			w.settle(ctx, p, onReady)
		}
		return nil
	})
}

// settle starts one stability waiter per path.
func (w *Watcher) settle(ctx context.Context, path string, onReady func(string)) {
	w.mu.Lock()
	if w.closed || w.pending[path] {
		w.mu.Unlock()
		return
	}
	w.pending[path] = true
	w.mu.Unlock()

	w.waiters.Add(1)
	go func() {
		defer w.waiters.Done()
		defer func() {
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
		}()

		size, err := WaitStable(ctx, path, w.opts.Stability)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.log.Debug("file not ready", "path", path, "error", err)
			}
			return
		}
		w.log.Debug("file ready", "path", path, "size", types.FormatSize(size))
		if onReady != nil {
			onReady(path)
		}
	}()
}

// WaitStable polls path until its size is unchanged across s.Samples
// consecutive samples spaced s.Interval apart, and returns that size.
func WaitStable(ctx context.Context, path string, s Stability) (int64, error) {
	if s.Samples < 1 {
		s.Samples = 1
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	last := int64(-1)
	same := 0
	for {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return 0, types.Wrap(types.ErrIO, "stability", path, ErrVanished)
			}
			return 0, types.Wrap(types.ErrIO, "stability", path, err)
		}
		if info.Size() == last {
			same++
		} else {
			last = info.Size()
			same = 1
		}
		if same >= s.Samples {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// addTree registers root and every directory below it. Symlinks are not
// followed.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		if path != w.root && w.opts.Exclude.Match(path) {
			return filepath.SkipDir
		}
		return w.addWatch(path)
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

func (w *Watcher) unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Watched returns the number of registered directories.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Close stops the watcher. Pending stability waiters finish when Run's
// context is cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
