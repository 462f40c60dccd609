package mover

import (
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

func crossDevice(src, dst string) error {
	return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func TestPlaceRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Inbox", "report.pdf")
	dst := filepath.Join(dir, "Documents", "2026", "report.pdf")
	writeFile(t, src, "pdf bytes")

	require.NoError(t, New().Place(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestPlaceRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "a.txt")
	dst := filepath.Join(dir, "out", "a.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	err := New().Place(src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDestinationExists)
	assert.ErrorIs(t, err, types.ErrIO)

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "old", string(data))
	assert.FileExists(t, src)
}

func TestPlaceRenameRaceReportsExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	writeFile(t, src, "x")

	racing := func(s, d string) error {
		return &os.LinkError{Op: "rename", Old: s, New: d, Err: os.ErrExist}
	}
	err := New(WithRename(racing)).Place(src, dst)
	assert.ErrorIs(t, err, types.ErrDestinationExists)
	assert.FileExists(t, src)
}

func TestPlaceCopyFallbackPreservesAttributes(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "song.flac")
	dst := filepath.Join(dir, "Music", "song.flac")
	writeFile(t, src, "audio payload")

	mtime := time.Date(2020, 5, 17, 8, 30, 0, 0, time.UTC)
	atime := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, atime, mtime))
	require.NoError(t, os.Chmod(src, 0o600))

	require.NoError(t, New(WithRename(crossDevice)).Place(src, dst))

	assert.NoFileExists(t, src)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v", info.ModTime())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "audio payload", string(data))
}

func TestPlaceCopyFailureLeavesSource(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "a.txt")
	writeFile(t, src, "keep me")
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.MkdirAll(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	err := New(WithRename(crossDevice)).Place(src, filepath.Join(locked, "a.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIO)
	assert.FileExists(t, src)
	assert.NoFileExists(t, filepath.Join(locked, "a.txt"))
}

func TestPlaceMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := New().Place(filepath.Join(dir, "gone"), filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, types.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlaceRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "subdir")
	require.NoError(t, os.Mkdir(src, 0o755))

	err := New().Place(src, filepath.Join(dir, "elsewhere"))
	assert.ErrorIs(t, err, types.ErrIO)
	assert.DirExists(t, src)
}

func TestCopyVerifiedRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	writeFile(t, src, "a")
	writeFile(t, dst, "b")

	info, err := os.Stat(src)
	require.NoError(t, err)
	err = New().copyVerified(src, dst, info)
	assert.ErrorIs(t, err, types.ErrDestinationExists)

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "b", string(data), "existing destination untouched")
}

func TestReadTimes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	writeFile(t, path, "x")
	atime := time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, atime, atime))

	info, err := os.Stat(path)
	require.NoError(t, err)
	times := readTimes(path, info)
	assert.False(t, times.Access.IsZero())
}

func TestPlaceCopyFallbackKeepsAccessTimeFromBeforeCopy(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("access time is read with statx")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "in", "clip.mov")
	dst := filepath.Join(dir, "Movies", "clip.mov")
	writeFile(t, src, "frames")

	// An atime older than a day is refreshed by the copy's read under relatime.
	atime := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	mtime := time.Date(2020, 5, 17, 8, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, atime, mtime))

	require.NoError(t, New(WithRename(crossDevice)).Place(src, dst))

	got := readTimes(dst, nil)
	assert.True(t, got.Access.Equal(atime), "atime %v, want %v", got.Access, atime)
}
