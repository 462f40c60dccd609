package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stow.log")
	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 64, MaxBackups: 10})
	require.NoError(t, err)
	defer w.Close()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 3; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	rotated := w.Rotated()
	assert.Len(t, rotated, 2)
	for _, p := range rotated {
		assert.True(t, strings.HasPrefix(filepath.Base(p), "stow.2026-03-01-"), p)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, line, string(data))
}

func TestRotatingWriterDaily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stow.log")
	w, err := NewRotatingWriter(path, RotationConfig{Daily: true})
	require.NoError(t, err)
	defer w.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	w.now = func() time.Time { return day }
	w.opened = day

	_, err = w.Write([]byte("before midnight\n"))
	require.NoError(t, err)
	assert.Empty(t, w.Rotated())

	day = day.Add(2 * time.Minute)
	_, err = w.Write([]byte("after midnight\n"))
	require.NoError(t, err)
	assert.Len(t, w.Rotated(), 1)
}

func TestRotatingWriterPrunesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stow.log")

	for _, name := range []string{"stow.2026-01-01-000000.log", "stow.2026-01-02-000000.log", "stow.2026-01-03-000000.log"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	}

	w, err := NewRotatingWriter(path, RotationConfig{MaxBackups: 1})
	require.NoError(t, err)
	defer w.Close()

	rotated := w.Rotated()
	require.Len(t, rotated, 1)
	assert.Equal(t, "stow.2026-01-03-000000.log", filepath.Base(rotated[0]))
}

func TestRotatingWriterClosed(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "stow.log"), RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriterPrunesByNameAge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stow.log")
	now := time.Now()
	keep := "stow." + now.AddDate(0, 0, -1).Format(rotatedTimeFormat) + ".log"
	drop := "stow." + now.AddDate(0, 0, -40).Format(rotatedTimeFormat) + ".log"
	foreign := "stow.notes.log"
	for _, name := range []string{keep, drop, foreign} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	w, err := NewRotatingWriter(path, RotationConfig{MaxAge: 30})
	require.NoError(t, err)
	defer w.Close()

	assert.FileExists(t, filepath.Join(dir, keep))
	assert.NoFileExists(t, filepath.Join(dir, drop))
	assert.FileExists(t, filepath.Join(dir, foreign))
	assert.Equal(t, []string{filepath.Join(dir, keep)}, w.Rotated())
}
