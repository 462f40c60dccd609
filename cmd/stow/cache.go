package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/cache"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the digest cache",
	Long: `Commands for the digest cache.

The cache remembers the SHA-256 of files whose size, modification time,
change time and inode are unchanged, so repeat index and compare runs do not
rehash them. It lives under cache.path (default $XDG_CACHE_HOME/stow/digests).`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached digests and the size on disk",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Drop cached digests",
	Long: `Drop every cached digest, or only those for files below path. The next
run rehashes the affected files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the cache location",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(cfg.CachePath())
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStats(_ *cobra.Command, _ []string) error {
	dir := cfg.CachePath()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Printf("Cache location: %s\n", dir)
		fmt.Println("Cache: empty (not created yet)")
		return nil
	}

	c, err := cache.Open(dir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	n, err := c.Len()
	closeErr := c.Close()
	if err != nil {
		return fmt.Errorf("counting cache entries: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}

	size, err := dirSize(dir)
	if err != nil {
		return fmt.Errorf("measuring cache: %w", err)
	}
	fmt.Printf("Cache location: %s\n", dir)
	fmt.Printf("Cached digests: %s\n", humanize.Comma(int64(n)))
	fmt.Printf("Size on disk:   %s\n", humanize.IBytes(uint64(size)))
	return nil
}

func runCacheClear(_ *cobra.Command, args []string) error {
	prefix := ""
	if len(args) == 1 {
		prefix = scanner.Canonical(args[0])
		if prefix != string(filepath.Separator) {
			prefix += string(filepath.Separator)
		}
	}

	// The cache is open for the whole of a route, index or quarantine run.
	lock, held, err := acquireLock()
	if err != nil || held {
		return err
	}
	defer func() { _ = lock.Release() }()

	c, err := cache.Open(cfg.CachePath())
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	n, err := c.Clear(prefix)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	if prefix == "" {
		printInfo("Removed %d cached digests.", n)
	} else {
		printInfo("Removed %d cached digests under %s.", n, prefix)
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return size, err
}
