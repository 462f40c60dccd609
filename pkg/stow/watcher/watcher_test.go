package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

var fast = Stability{Samples: 2, Interval: 20 * time.Millisecond}

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) add(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *collector) has(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.paths {
		if got == p {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string, opts Options) (*collector, func()) {
	t.Helper()
	w, err := New(root, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, c.add)
	}()
	return c, func() {
		cancel()
		<-done
		_ = w.Close()
	}
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestNewWatchesSubdirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Duplicates"), 0o755))

	ex, err := scanner.NewExcluder(nil, []string{filepath.Join(root, "Duplicates")})
	require.NoError(t, err)
	w, err := New(root, Options{Exclude: ex})
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, 3, w.Watched())
}

func TestRunReportsStableFile(t *testing.T) {
	root := scanner.Canonical(t.TempDir())
	c, stop := startWatcher(t, root, Options{Stability: fast})
	defer stop()

	path := filepath.Join(root, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	assert.Eventually(t, func() bool { return c.has(path) }, 5*time.Second, 20*time.Millisecond)
}

func TestRunReportsFilesInNewDirectory(t *testing.T) {
	root := scanner.Canonical(t.TempDir())
	c, stop := startWatcher(t, root, Options{Stability: fast})
	defer stop()

	dir := filepath.Join(root, "album")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("la"), 0o644))

	assert.Eventually(t, func() bool { return c.has(path) }, 5*time.Second, 20*time.Millisecond)
}

func TestRunIgnoresExcluded(t *testing.T) {
	root := scanner.Canonical(t.TempDir())
	dups := filepath.Join(root, "Duplicates")
	require.NoError(t, os.Mkdir(dups, 0o755))
	ex, err := scanner.NewExcluder(nil, []string{dups})
	require.NoError(t, err)

	c, stop := startWatcher(t, root, Options{Exclude: ex, Stability: fast})
	defer stop()

	excluded := filepath.Join(dups, "photo.jpg")
	included := filepath.Join(root, "photo.jpg")
	require.NoError(t, os.WriteFile(excluded, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(included, []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return c.has(included) }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, c.has(excluded))
}

func TestWaitStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))

	size, err := WaitStable(context.Background(), path, fast)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestWaitStableGrowingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; i < 5; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = f.Write([]byte("chunk"))
			time.Sleep(10 * time.Millisecond)
		}
	}()

	size, err := WaitStable(context.Background(), path, Stability{Samples: 3, Interval: 30 * time.Millisecond})
	close(stop)
	<-writerDone
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, int64(25), size)
}

func TestWaitStableVanished(t *testing.T) {
	_, err := WaitStable(context.Background(), filepath.Join(t.TempDir(), "gone"), fast)
	assert.ErrorIs(t, err, ErrVanished)
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestWaitStableCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitStable(ctx, path, Stability{Samples: 5, Interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSubPath(t *testing.T) {
	assert.True(t, isSubPath("/a/b/c", "/a/b"))
	assert.False(t, isSubPath("/a/bc", "/a/b"))
	assert.False(t, isSubPath("/a/b", "/a/b"))
}
