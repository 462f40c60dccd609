package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/stow/pkg/stow/config"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/output"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitFailures = 2
)

// skipSetup marks commands that run without loading config or logging.
const skipSetup = "skip_setup"

// errFailures is returned after the report is printed when some files
// need manual review.
var errFailures = errors.New("some files failed; see the report")

var (
	cfgFile      string
	outputFormat string

	// cfg is loaded in PersistentPreRunE for every command that needs it.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "stow",
		Short: "Route Inbox files into a library and deduplicate by content",
		Long: `Stow empties an Inbox folder into category folders of a library.

Files whose name is already taken by identical content go to the Inbox's
Duplicates folder; files whose name is taken by different content are
placed as "name (n).ext". Inventories record SHA-256 digests of whole trees
so another tree can be compared against them and its duplicates quarantined.

Examples:
  stow route                         # Route the Inbox once
  stow route --watch                 # Keep routing as files arrive
  stow route --dry-run -o table      # Show what would happen
  stow index ~/Pictures              # Record digests in ~/Pictures/inventory.csv
  stow compare ~/Pictures/inventory.csv /mnt/backup
  stow quarantine ~/Pictures/inventory.csv /mnt/backup --dry-run
  stow classify song.flac report.pdf`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/stow/config.yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "", fmt.Sprintf("output format %v (default: table on a terminal, plain otherwise)", output.Available()))
	flags.IntP("workers", "w", 0, "concurrent destination folders or hashers")
	flags.BoolP("dry-run", "n", false, "plan and report without moving anything")
	flags.StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	flags.Bool("no-cache", false, "always hash files, bypassing the digest cache")
	flags.BoolP("quiet", "q", false, "only print errors")
	flags.BoolP("verbose", "v", false, "debug output on stderr")

	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("dry_run", flags.Lookup("dry-run"))
	_ = viper.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = viper.BindPFlag("no_cache", flags.Lookup("no-cache"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

// setup loads and validates the config and starts logging.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipSetup] == "true" {
		return nil
	}
	v := viper.GetViper()
	config.Setup(v, cfgFile)
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	switch {
	case v.GetBool("verbose"):
		c.Logging.Console = "debug"
	case v.GetBool("quiet"):
		c.Logging.Console = ""
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := logging.Init(c.LoggingSetup()); err != nil {
		return types.Wrap(types.ErrConfiguration, "logging", c.Logging.Path, err)
	}
	cfg = c
	logging.Get("cli").Debug("config loaded", "file", v.ConfigFileUsed(), "command", cmd.CommandPath())
	return nil
}

// teardown exports metrics and closes the log. It runs whether or not the
// command succeeded.
func teardown() {
	if cfg == nil {
		return
	}
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logging.Get("cli").Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	_ = logging.Close()
}

// Execute runs the root command and maps the result to an exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer teardown()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errFailures):
		printError("%v", err)
		return exitFailures
	default:
		printError("%v", err)
		return exitError
	}
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints to stderr unless quiet mode is on. Reports go to stdout.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
