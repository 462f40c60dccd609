package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/cache"
	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/config"
	"github.com/jamesainslie/stow/pkg/stow/history"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{
		Inbox:    filepath.Join(dir, "Inbox"),
		Library:  filepath.Join(dir, "lib"),
		LockPath: filepath.Join(dir, "state", "stow.lock"),
	}
	c.Cache.Path = filepath.Join(dir, "cache")
	c.History.Enabled = true
	c.History.Path = filepath.Join(dir, "history")
	c.History.RetentionDays = 30
	return c
}

func TestArtifactPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		want string
	}{
		{"default next to master", "", "/lib/quarantine_matches.csv"},
		{"skip", "-", ""},
		{"explicit", "/tmp/m.csv", "/tmp/m.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{}
			cmd.Flags().String("artifact", "", "")
			require.NoError(t, cmd.Flags().Set("artifact", tt.flag))
			assert.Equal(t, tt.want, artifactPath(cmd, "/lib/inventory.csv"))
		})
	}
}

func TestDestinationsPreview(t *testing.T) {
	cfg = testConfig(t)
	cfg.Destinations.Music = "/srv/music"

	dests := destinationsPreview()
	assert.Equal(t, filepath.Join(cfg.Library, "Pictures"), dests[classify.Photo])
	assert.Equal(t, "/srv/music", dests[classify.Music])
	assert.NoDirExists(t, dests[classify.Photo])
}

func TestAcquireLockHeldElsewhere(t *testing.T) {
	cfg = testConfig(t)

	first, err := runlock.Acquire(cfg.RunLockPath())
	require.NoError(t, err)
	defer func() { _ = first.Release() }()

	lock, held, err := acquireLock()
	require.NoError(t, err)
	assert.True(t, held)
	assert.Nil(t, lock)
}

func TestFinishRecordsHistory(t *testing.T) {
	cfg = testConfig(t)
	outputFormat = "plain"
	t.Cleanup(func() { outputFormat = "" })

	ok := &types.Report{Operation: "route", Summary: types.Summary{Total: 1, Moved: 1}}
	require.NoError(t, finish(ok))

	bad := &types.Report{Operation: "route", Summary: types.Summary{Total: 1, Failed: 1}}
	require.ErrorIs(t, finish(bad), errFailures)

	store, err := history.New(cfg.HistoryPath())
	require.NoError(t, err)
	entries, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	cfg.History.Enabled = false
	require.NoError(t, finish(ok))
	entries, err = store.List(0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRouteCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "Inbox")
	lib := filepath.Join(dir, "lib")
	write(t, filepath.Join(inbox, "report.pdf"), "pdf")
	write(t, filepath.Join(inbox, "photo.jpg"), "same")
	write(t, filepath.Join(lib, "Pictures", "photo.jpg"), "same")

	cfgPath := filepath.Join(dir, "config.yaml")
	write(t, cfgPath, fmt.Sprintf(`inbox: %s
library: %s
lock_path: %s
cache:
  path: %s
history:
  path: %s
metrics:
  textfile: %s
logging:
  path: %s
`, inbox, lib, filepath.Join(dir, "stow.lock"), filepath.Join(dir, "cache"),
		filepath.Join(dir, "history"), filepath.Join(dir, "stow.prom"), filepath.Join(dir, "stow.log")))

	rootCmd.SetArgs([]string{"--config", cfgPath, "-o", "json", "route", "--once"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	teardown()

	assert.FileExists(t, filepath.Join(lib, "Documents", "report.pdf"))
	assert.FileExists(t, filepath.Join(inbox, "Duplicates", "photo.jpg"))
	assert.FileExists(t, filepath.Join(lib, "Pictures", "photo.jpg"))
	assert.NoFileExists(t, filepath.Join(inbox, "report.pdf"))
	assert.FileExists(t, filepath.Join(dir, "stow.prom"))

	store, err := history.New(filepath.Join(dir, "history"))
	require.NoError(t, err)
	entries, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "route", entries[0].Operation)
	assert.Equal(t, 1, entries[0].Report.Summary.Moved)
	assert.Equal(t, 1, entries[0].Report.Summary.Duplicates)
}

func TestCacheClearUnderPath(t *testing.T) {
	cfg = testConfig(t)
	st := cache.Stamp{Size: 1, Mtime: 1}
	const digest = types.Digest("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	c, err := cache.Open(cfg.CachePath())
	require.NoError(t, err)
	require.NoError(t, c.Remember("/srv/photos/a.jpg", st, digest))
	require.NoError(t, c.Remember("/srv/photos/b.jpg", st, digest))
	require.NoError(t, c.Remember("/srv/photos-old/c.jpg", st, digest))
	require.NoError(t, c.Close())

	require.NoError(t, runCacheStats(nil, nil))
	require.NoError(t, runCacheClear(nil, []string{"/srv/photos"}))

	c, err = cache.Open(cfg.CachePath())
	require.NoError(t, err)
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "sibling directory sharing the name prefix is kept")
	require.NoError(t, c.Close())

	require.NoError(t, runCacheClear(nil, nil))
	c, err = cache.Open(cfg.CachePath())
	require.NoError(t, err)
	defer c.Close()
	n, err = c.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}
