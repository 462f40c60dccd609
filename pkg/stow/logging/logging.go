// Package logging provides component loggers for stow on top of
// charmbracelet/log. Every run appends logfmt lines to a rotating log file;
// a second, human-readable sink on stderr is optional.
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logging.Get("router").Info("placed", "source", src, "target", dst)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a charmbracelet/log level.
type Level = log.Level

// Levels accepted in configuration.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ErrInvalidLevel is returned for a level name ParseLevel does not know.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel maps a configured level name to a Level. The empty string is
// info and "warning" is accepted for warn; fatal is not configurable.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	case "fatal":
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
	lvl, err := log.ParseLevel(name)
	if err != nil {
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
	return lvl, nil
}

// Config configures the logging system.
type Config struct {
	Level      string            // default level for every component
	Path       string            // log file; empty uses DefaultLogPath()
	Rotation   RotationConfig    // size and age limits for Path
	Components map[string]string // per-component level overrides

	// ConsoleLevel enables stderr output at this level. Empty disables it.
	ConsoleLevel string
	// Console replaces os.Stderr as the console sink.
	Console io.Writer
}

// Logger fans each entry out to the log file and, when enabled, the console.
type Logger struct {
	component string
	sinks     atomic.Pointer[[]*log.Logger]
}

func newLogger(component string, sinks []*log.Logger) *Logger {
	l := &Logger{component: component}
	l.sinks.Store(&sinks)
	return l
}

func (l *Logger) emit(level Level, msg string, args []interface{}) {
	for _, s := range *l.sinks.Load() {
		s.Log(level, msg, args...)
	}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(LevelDebug, msg, args) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...interface{}) { l.emit(LevelInfo, msg, args) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...interface{}) { l.emit(LevelWarn, msg, args) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(LevelError, msg, args) }

// With returns a logger that appends args to every entry.
func (l *Logger) With(args ...interface{}) *Logger {
	parent := *l.sinks.Load()
	sinks := make([]*log.Logger, len(parent))
	for i, s := range parent {
		sinks[i] = s.With(args...)
	}
	return newLogger(l.component, sinks)
}

// Component returns the name the logger was obtained with.
func (l *Logger) Component() string {
	return l.component
}

// registry holds the active sinks and every logger handed out so far.
type registry struct {
	mu        sync.RWMutex
	file      *RotatingWriter
	level     Level
	overrides map[string]Level
	console   io.Writer
	conLevel  Level
	loggers   map[string]*Logger
}

var reg = &registry{loggers: make(map[string]*Logger)}

// Init opens the log file and repoints every logger handed out so far at the
// new sinks. Before Init and after Close loggers have no sinks. Loggers
// derived with With keep the sinks they were derived from.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	overrides := make(map[string]Level, len(cfg.Components))
	for name, raw := range cfg.Components {
		lvl, err := ParseLevel(raw)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", name, err)
		}
		overrides[name] = lvl
	}

	var console io.Writer
	conLevel := LevelInfo
	if cfg.ConsoleLevel != "" {
		if conLevel, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = cfg.Console
		if console == nil {
			console = os.Stderr
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	file, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.file != nil {
		_ = reg.file.Close()
	}
	reg.file = file
	reg.level = level
	reg.overrides = overrides
	reg.console = console
	reg.conLevel = conLevel
	for name, l := range reg.loggers {
		sinks := reg.sinksFor(name)
		l.sinks.Store(&sinks)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	reg.mu.RLock()
	l, ok := reg.loggers[component]
	reg.mu.RUnlock()
	if ok {
		return l
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if l, ok := reg.loggers[component]; ok {
		return l
	}
	l = newLogger(component, reg.sinksFor(component))
	reg.loggers[component] = l
	return l
}

// sinksFor must be called with reg.mu held.
func (r *registry) sinksFor(component string) []*log.Logger {
	if r.file == nil {
		return nil
	}
	level := r.level
	if lvl, ok := r.overrides[component]; ok {
		level = lvl
	}
	sinks := []*log.Logger{log.NewWithOptions(r.file, log.Options{
		Level:           level,
		Prefix:          component,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       log.LogfmtFormatter,
	})}
	if r.console != nil {
		sinks = append(sinks, log.NewWithOptions(r.console, log.Options{
			Level:           r.conLevel,
			Prefix:          component,
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}
	return sinks
}

// Close closes the log file and detaches every logger from its sinks.
func Close() error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	file := reg.file
	reg.file = nil
	reg.console = nil
	reg.overrides = nil
	for _, l := range reg.loggers {
		l.sinks.Store(new([]*log.Logger))
	}
	if file == nil {
		return nil
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/stow/stow.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "stow", "stow.log")
}

// DefaultConfig logs at info to DefaultLogPath with default rotation.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
