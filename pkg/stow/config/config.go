package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level"`
	Path       string            `mapstructure:"path" yaml:"path"`
	Console    string            `mapstructure:"console" yaml:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components"`
}

// Destinations overrides the folder of each category. Relative paths are
// resolved under the library root; empty uses the category's default name.
type Destinations struct {
	Photo    string `mapstructure:"photo" yaml:"photo"`
	Music    string `mapstructure:"music" yaml:"music"`
	Video    string `mapstructure:"video" yaml:"video"`
	Document string `mapstructure:"document" yaml:"document"`
	Misc     string `mapstructure:"misc" yaml:"misc"`
}

// StabilityConfig controls the watch-mode size-stability wait.
type StabilityConfig struct {
	Samples  int           `mapstructure:"samples" yaml:"samples"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Config represents the application configuration.
type Config struct {
	Inbox         string          `mapstructure:"inbox" yaml:"inbox"`
	Library       string          `mapstructure:"library" yaml:"library"`
	Destinations  Destinations    `mapstructure:"destinations" yaml:"destinations"`
	DuplicatesDir string          `mapstructure:"duplicates_dir" yaml:"duplicates_dir"`
	QuarantineDir string          `mapstructure:"quarantine_dir" yaml:"quarantine_dir"`
	Workers       int             `mapstructure:"workers" yaml:"workers"`
	Watch         bool            `mapstructure:"watch" yaml:"watch"`
	DryRun        bool            `mapstructure:"dry_run" yaml:"dry_run"`
	Stability     StabilityConfig `mapstructure:"stability" yaml:"stability"`
	Exclude       []string        `mapstructure:"exclude" yaml:"exclude"`
	LockPath      string          `mapstructure:"lock_path" yaml:"lock_path"`
	Inventory     struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"inventory" yaml:"inventory"`
	Cache struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Path    string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"cache" yaml:"cache"`
	History struct {
		Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
		Path          string `mapstructure:"path" yaml:"path"`
		RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days"`
	} `mapstructure:"history" yaml:"history"`
	Metrics struct {
		Textfile string `mapstructure:"textfile" yaml:"textfile"`
	} `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// Setup points v at the config file locations, enables STOW_ environment
// overrides and installs defaults. A non-empty file replaces the search path.
//   - $XDG_CONFIG_HOME/stow/config.yaml
//   - $HOME/.config/stow/config.yaml
func Setup(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "stow"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "stow"))
		}
	}

	v.SetEnvPrefix("STOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// SetDefaults installs every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("inbox", DefaultInbox)
	v.SetDefault("library", DefaultLibrary)
	for _, c := range classify.All {
		v.SetDefault("destinations."+c.String(), "")
	}
	v.SetDefault("duplicates_dir", DefaultDuplicatesDir)
	v.SetDefault("quarantine_dir", DefaultQuarantineDir)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("watch", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("stability.samples", DefaultStabilitySamples)
	v.SetDefault("stability.interval", DefaultStabilityInterval)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("lock_path", "")
	v.SetDefault("inventory.path", "")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", DefaultComponents)
}

// Load reads the config file (a missing file is fine) and unmarshals v.
// Paths are expanded; the result is not validated.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, types.Wrap(types.ErrConfiguration, "read config", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "unmarshal config", v.ConfigFileUsed(), err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads from the standard locations with a fresh viper.
func LoadDefault() (*Config, error) {
	v := viper.New()
	Setup(v, "")
	return Load(v)
}

func (c *Config) expand() error {
	fields := []*string{
		&c.Inbox, &c.Library, &c.LockPath, &c.Inventory.Path, &c.Cache.Path,
		&c.History.Path, &c.Metrics.Textfile, &c.Logging.Path,
		&c.Destinations.Photo, &c.Destinations.Music, &c.Destinations.Video,
		&c.Destinations.Document, &c.Destinations.Misc,
		&c.DuplicatesDir, &c.QuarantineDir,
	}
	for _, f := range fields {
		expanded, err := ExpandPath(*f)
		if err != nil {
			return types.Wrap(types.ErrConfiguration, "expand path", *f, err)
		}
		*f = expanded
	}
	return nil
}

// Validate checks everything that must hold before any file is touched.
func (c *Config) Validate() error {
	var problems []string

	if c.Inbox == "" {
		problems = append(problems, "inbox is not set")
	}
	if c.Library == "" {
		problems = append(problems, "library is not set")
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Stability.Samples < 1 {
		problems = append(problems, fmt.Sprintf("stability.samples must be at least 1, got %d", c.Stability.Samples))
	}
	if c.Stability.Interval <= 0 {
		problems = append(problems, "stability.interval must be positive")
	}
	if c.History.RetentionDays < 0 {
		problems = append(problems, "history.retention_days must not be negative")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Logging.Console != "" {
		if _, err := logging.ParseLevel(c.Logging.Console); err != nil {
			problems = append(problems, "logging.console: "+err.Error())
		}
	}
	for comp, lvl := range c.Logging.Components {
		if _, err := logging.ParseLevel(lvl); err != nil {
			problems = append(problems, fmt.Sprintf("logging.components.%s: %v", comp, err))
		}
	}
	if _, err := c.Logging.MaxSizeBytes(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateInbox checks that the Inbox is an accessible directory.
func (c *Config) ValidateInbox() error {
	info, err := os.Stat(c.Inbox)
	if err != nil {
		return types.Wrap(types.ErrConfiguration, "inbox", c.Inbox, err)
	}
	if !info.IsDir() {
		return types.Wrap(types.ErrConfiguration, "inbox", c.Inbox, errors.New("not a directory"))
	}
	return nil
}

// ResolveDestinations returns the absolute destination folder of every
// category. Folders are created when missing; a destination that exists but
// is not a directory is a configuration error.
func (c *Config) ResolveDestinations() (map[classify.Category]string, error) {
	overrides := map[classify.Category]string{
		classify.Photo:    c.Destinations.Photo,
		classify.Music:    c.Destinations.Music,
		classify.Video:    c.Destinations.Video,
		classify.Document: c.Destinations.Document,
		classify.Misc:     c.Destinations.Misc,
	}

	out := make(map[classify.Category]string, len(classify.All))
	for _, cat := range classify.All {
		dir := overrides[cat]
		if dir == "" {
			dir = classify.DefaultDirs[cat]
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.Library, dir)
		}
		dir, err := filepath.Abs(dir)
		if err != nil {
			return nil, types.Wrap(types.ErrConfiguration, "destination", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, types.Wrap(types.ErrConfiguration, "destination", dir, err)
		}
		out[cat] = dir
	}
	return out, nil
}

// DuplicatesPath returns the Duplicates holding area. Relative values live
// inside the Inbox.
func (c *Config) DuplicatesPath() string {
	return under(c.Inbox, c.DuplicatesDir, DefaultDuplicatesDir)
}

// QuarantinePath returns the quarantine folder for a compared root.
// Relative values live inside that root.
func (c *Config) QuarantinePath(root string) string {
	return under(root, c.QuarantineDir, DefaultQuarantineDir)
}

// InventoryPath returns the ledger for root: the configured path, or
// inventory.csv inside root.
func (c *Config) InventoryPath(root string) string {
	if c.Inventory.Path != "" {
		return c.Inventory.Path
	}
	return filepath.Join(root, DefaultInventoryName)
}

// RunLockPath returns the run lock file.
func (c *Config) RunLockPath() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return filepath.Join(StateDir(), "stow.lock")
}

// CachePath returns the digest cache directory.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(CacheDir(), "digests")
}

// HistoryPath returns the history manifest directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(DataDir(), "history")
}

// MaxSizeBytes parses the rotation size ("10MB", "512KiB").
func (l LoggingConfig) MaxSizeBytes() (int64, error) {
	if l.Rotation.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(l.Rotation.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("logging.rotation.max_size: %w", err)
	}
	return int64(n), nil
}

// LoggingSetup converts the logging section for logging.Init.
func (c *Config) LoggingSetup() logging.Config {
	size, _ := c.Logging.MaxSizeBytes()
	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level: c.Logging.Level,
		Path:  path,
		Rotation: logging.RotationConfig{
			MaxSize:    size,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.Console,
	}
}

func under(root, dir, def string) string {
	if dir == "" {
		dir = def
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "stow"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "stow"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/stow.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "stow")
}

// StateDir returns $XDG_STATE_HOME/stow.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "stow")
}

// CacheDir returns $XDG_CACHE_HOME/stow.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "stow")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a commented default config to path, or to ConfigPath
// when path is empty. An existing file is left alone and reported via the
// returned bool.
func WriteDefault(path string) (string, bool, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return "", false, err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return path, false, fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate()), 0o644); err != nil {
		return path, false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

func defaultTemplate() string {
	return fmt.Sprintf(`# stow configuration

# Staging directory that "stow route" empties
inbox: %s

# Root under which category folders are created
library: %s

# Per-category folders; relative paths live under the library
destinations:
  photo: Pictures
  music: Music
  video: Videos
  document: Documents
  misc: Misc

# Exact duplicates land here (relative to the inbox)
duplicates_dir: %s

# Quarantined files land here (relative to the compared root)
quarantine_dir: %s

# Hashing and routing concurrency
workers: %d

# Keep watching the inbox after the first pass
watch: false

# Plan and report without moving anything
dry_run: false

# A file is routed once its size is unchanged across these samples
stability:
  samples: %d
  interval: %s

# Glob patterns never scanned or routed
exclude:
%s
# Ledger path; empty means inventory.csv inside the indexed root
inventory:
  path: ""

# Persistent digest cache ($XDG_CACHE_HOME/stow/digests when empty)
cache:
  enabled: true
  path: ""

# Run manifests ($XDG_DATA_HOME/stow/history when empty)
history:
  enabled: true
  path: ""
  retention_days: %d

# Prometheus textfile for node_exporter; empty disables it
metrics:
  textfile: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/stow/stow.log
  path: ""
  # Also log to stderr at this level; empty disables it
  console: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    router: info
    scanner: info
    inventory: info
    mover: info
    watcher: warn
    workflow: info
    cli: info
`, DefaultInbox, DefaultLibrary, DefaultDuplicatesDir, DefaultQuarantineDir, DefaultWorkers,
		DefaultStabilitySamples, DefaultStabilityInterval, exclusionList(), DefaultRetentionDays, DefaultLogMaxSize)
}

func exclusionList() string {
	var b strings.Builder
	for _, e := range DefaultExclusions {
		fmt.Fprintf(&b, "  - %q\n", e)
	}
	return b.String()
}
