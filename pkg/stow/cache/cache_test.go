package cache

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

const digestA = types.Digest("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

func stamp(size int64, mtime time.Time) Stamp {
	return Stamp{Size: size, Mtime: mtime.UnixNano()}
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenWithSize(t.TempDir(), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheRememberLookup(t *testing.T) {
	c := openTestCache(t)
	mtime := time.Unix(1700000000, 42)

	_, ok := c.Lookup("/inbox/a.jpg", stamp(10, mtime))
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, c.Remember("/inbox/a.jpg", stamp(10, mtime), digestA))

	got, ok := c.Lookup("/inbox/a.jpg", stamp(10, mtime))
	require.True(t, ok)
	assert.Equal(t, digestA, got)
}

func TestCacheStaleEntryIsDropped(t *testing.T) {
	c := openTestCache(t)
	mtime := time.Unix(1700000000, 0)
	require.NoError(t, c.Remember("/inbox/a.jpg", stamp(10, mtime), digestA))

	_, ok := c.Lookup("/inbox/a.jpg", stamp(11, mtime))
	assert.False(t, ok, "size change must miss")

	_, ok = c.Lookup("/inbox/a.jpg", stamp(10, mtime))
	assert.False(t, ok, "stale entry must be removed")

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Unix(1700000000, 0)

	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Remember("/lib/a", stamp(1, mtime), digestA))
	require.NoError(t, c.Close())

	c, err = Open(dir)
	require.NoError(t, err)
	defer c.Close()

	got, ok := c.Lookup("/lib/a", stamp(1, mtime))
	require.True(t, ok)
	assert.Equal(t, digestA, got)
}

func TestCacheRejectsInvalidDigest(t *testing.T) {
	c := openTestCache(t)
	err := c.Remember("/x", stamp(1, time.Now()), types.Digest("xyz"))
	assert.ErrorIs(t, err, types.ErrInvalidDigest)
}

func TestCacheForgetAndClear(t *testing.T) {
	c := openTestCache(t)
	mtime := time.Unix(1, 0)
	require.NoError(t, c.Remember("/a/1", stamp(1, mtime), digestA))
	require.NoError(t, c.Remember("/a/2", stamp(1, mtime), digestA))
	require.NoError(t, c.Remember("/b/1", stamp(1, mtime), digestA))

	require.NoError(t, c.Forget("/a/1"))
	require.NoError(t, c.Forget("/never/stored"))
	_, ok := c.Lookup("/a/1", stamp(1, mtime))
	assert.False(t, ok)

	removed, err := c.Clear("/a/")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestKeyRoundTrip(t *testing.T) {
	assert.Equal(t, "/some/path", ParseKey(MakeKey("/some/path")))
}

func TestCacheMissesOnChangedIdentity(t *testing.T) {
	c := openTestCache(t)
	base := Stamp{Size: 4, Mtime: 100, Ctime: 100, Inode: 7}
	require.NoError(t, c.Remember("/inbox/photo.jpg", base, digestA))

	rewritten := base
	rewritten.Ctime = 200
	_, ok := c.Lookup("/inbox/photo.jpg", rewritten)
	assert.False(t, ok, "in-place rewrite with restored mtime must miss")

	require.NoError(t, c.Remember("/inbox/photo.jpg", base, digestA))
	replaced := base
	replaced.Inode = 8
	_, ok = c.Lookup("/inbox/photo.jpg", replaced)
	assert.False(t, ok, "another file at the same path must miss")
}

func TestStampOfRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	s := StampOf(info)
	assert.Equal(t, int64(3), s.Size)
	assert.Equal(t, info.ModTime().UnixNano(), s.Mtime)
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		assert.NotZero(t, s.Ctime)
		assert.NotZero(t, s.Inode)
	}
}
