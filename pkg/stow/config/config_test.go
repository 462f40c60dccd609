package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Inbox"), cfg.Inbox)
	assert.Equal(t, home, cfg.Library)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultStabilitySamples, cfg.Stability.Samples)
	assert.Equal(t, DefaultStabilityInterval, cfg.Stability.Interval)
	assert.Equal(t, DefaultExclusions, cfg.Exclude)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, DefaultRetentionDays, cfg.History.RetentionDays)
	assert.Equal(t, "warn", cfg.Logging.Components["watcher"])
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "stow")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
inbox: /data/inbox
library: /data/library
destinations:
  photo: /photos
  music: Audio
workers: 4
dry_run: true
stability:
  samples: 5
  interval: 250ms
exclude:
  - "*.tmp"
history:
  retention_days: 7
logging:
  level: debug
`), 0o644))

	cfg, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, "/data/inbox", cfg.Inbox)
	assert.Equal(t, "/photos", cfg.Destinations.Photo)
	assert.Equal(t, "Audio", cfg.Destinations.Music)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, 5, cfg.Stability.Samples)
	assert.Equal(t, 250*time.Millisecond, cfg.Stability.Interval)
	assert.Equal(t, []string{"*.tmp"}, cfg.Exclude)
	assert.Equal(t, 7, cfg.History.RetentionDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExplicitFileAndEnv(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("workers: 3\ninbox: /in\n"), 0o644))
	t.Setenv("STOW_WORKERS", "9")

	v := viper.New()
	Setup(v, file)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Workers)
	assert.Equal(t, "/in", cfg.Inbox)
}

func TestLoadMalformedFile(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("workers: [unterminated\n"), 0o644))

	v := viper.New()
	Setup(v, file)
	_, err := Load(v)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{Inbox: "/in", Library: "/lib", Workers: 1}
		c.Stability = StabilityConfig{Samples: 1, Interval: time.Second}
		c.Logging.Level = "info"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no inbox", func(c *Config) { c.Inbox = "" }, "inbox is not set"},
		{"no library", func(c *Config) { c.Library = "" }, "library is not set"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers must be at least 1"},
		{"zero samples", func(c *Config) { c.Stability.Samples = 0 }, "stability.samples"},
		{"zero interval", func(c *Config) { c.Stability.Interval = 0 }, "stability.interval"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "loud"},
		{"bad component", func(c *Config) { c.Logging.Components = map[string]string{"router": "x"} }, "logging.components.router"},
		{"bad size", func(c *Config) { c.Logging.Rotation.MaxSize = "huge" }, "max_size"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			assert.ErrorIs(t, err, types.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateInbox(t *testing.T) {
	dir := t.TempDir()
	c := &Config{Inbox: dir}
	assert.NoError(t, c.ValidateInbox())

	c.Inbox = filepath.Join(dir, "missing")
	assert.ErrorIs(t, c.ValidateInbox(), types.ErrConfiguration)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	c.Inbox = file
	assert.ErrorIs(t, c.ValidateInbox(), types.ErrConfiguration)
}

func TestResolveDestinations(t *testing.T) {
	lib := t.TempDir()
	abs := filepath.Join(t.TempDir(), "photos")
	c := &Config{Library: lib}
	c.Destinations.Photo = abs
	c.Destinations.Music = "Audio"

	dests, err := c.ResolveDestinations()
	require.NoError(t, err)
	assert.Equal(t, abs, dests[classify.Photo])
	assert.Equal(t, filepath.Join(lib, "Audio"), dests[classify.Music])
	assert.Equal(t, filepath.Join(lib, "Documents"), dests[classify.Document])
	assert.Equal(t, filepath.Join(lib, "Misc"), dests[classify.Misc])
	assert.Len(t, dests, len(classify.All))
	assert.DirExists(t, dests[classify.Video])
}

func TestResolveDestinationsNotADirectory(t *testing.T) {
	lib := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lib, "Pictures"), nil, 0o644))
	c := &Config{Library: lib}
	_, err := c.ResolveDestinations()
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestDerivedPaths(t *testing.T) {
	c := &Config{Inbox: "/in"}
	assert.Equal(t, "/in/Duplicates", c.DuplicatesPath())
	assert.Equal(t, "/target/Quarantine", c.QuarantinePath("/target"))
	assert.Equal(t, "/target/inventory.csv", c.InventoryPath("/target"))

	c.DuplicatesDir = "/elsewhere/dups"
	c.QuarantineDir = "held"
	c.Inventory.Path = "/ledgers/master.csv"
	assert.Equal(t, "/elsewhere/dups", c.DuplicatesPath())
	assert.Equal(t, "/target/held", c.QuarantinePath("/target"))
	assert.Equal(t, "/ledgers/master.csv", c.InventoryPath("/target"))
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)
	got, err := ExpandPath("~/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), got)

	got, err = ExpandPath("/abs/~x")
	require.NoError(t, err)
	assert.Equal(t, "/abs/~x", got)
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "stow", "config.yaml")

	got, created, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, path, got)

	v := viper.New()
	Setup(v, path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "Pictures", cfg.Destinations.Photo)

	_, created, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoggingSetup(t *testing.T) {
	c := &Config{}
	c.Logging.Level = "debug"
	c.Logging.Rotation.MaxSize = "1MiB"
	c.Logging.Rotation.MaxBackups = 2

	lc := c.LoggingSetup()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, int64(1<<20), lc.Rotation.MaxSize)
	assert.Equal(t, 2, lc.Rotation.MaxBackups)
	assert.NotEmpty(t, lc.Path)
}
