package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/router"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/watcher"
)

// batchDelay collects files that settle close together into one routing pass.
const batchDelay = 500 * time.Millisecond

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route Inbox files into the library",
	Long: `Route every file in the Inbox to its category folder.

A file whose name is free is moved there. If the name is taken by identical
content the file goes to the Inbox's Duplicates folder; if it is taken by
different content the file is placed as "name (n).ext". Failures are reported
and leave the file where it was.

With --watch, stow keeps running and routes files as soon as they stop
growing. Only one stow run holds the Inbox at a time; a second one exits
quietly.`,
	Args: cobra.NoArgs,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().Bool("once", false, "route the current Inbox contents and exit (default)")
	routeCmd.Flags().Bool("watch", false, "keep routing new files until interrupted")
	routeCmd.MarkFlagsMutuallyExclusive("once", "watch")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateInbox(); err != nil {
		return err
	}
	dests, err := cfg.ResolveDestinations()
	if err != nil {
		return err
	}

	watch := cfg.Watch
	if cmd.Flags().Changed("watch") {
		watch, _ = cmd.Flags().GetBool("watch")
	}
	if once, _ := cmd.Flags().GetBool("once"); once {
		watch = false
	}

	lock, held, err := acquireLock()
	if err != nil || held {
		return err
	}
	defer func() { _ = lock.Release() }()

	h, closeHasher := openHasher()
	defer closeHasher()

	r, err := router.New(router.Options{
		Inbox:         cfg.Inbox,
		Destinations:  dests,
		DuplicatesDir: cfg.DuplicatesPath(),
		Exclude:       cfg.Exclude,
		Workers:       cfg.Workers,
		DryRun:        cfg.DryRun,
		Hasher:        h,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rep, err := r.Run(ctx, lock)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ferr := finish(rep)
	if !watch || ctx.Err() != nil {
		return ferr
	}
	return watchInbox(ctx, r, lock)
}

// watchInbox routes files as the watcher reports them settled, batching
// arrivals that land within batchDelay of each other.
func watchInbox(ctx context.Context, r *router.Router, lock *runlock.Lock) error {
	log := logging.Get("cli")
	w, err := watcher.New(r.Inbox(), watcher.Options{
		Exclude: r.Excluder(),
		Stability: watcher.Stability{
			Samples:  cfg.Stability.Samples,
			Interval: cfg.Stability.Interval,
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	var (
		mu      sync.Mutex
		pending []string
		kick    = make(chan struct{}, 1)
	)
	ready := func(path string) {
		mu.Lock()
		pending = append(pending, path)
		mu.Unlock()
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, ready) }()
	printInfo("watching %s (%d directories)", r.Inbox(), w.Watched())
	log.Info("watching inbox", "inbox", r.Inbox(), "dirs", w.Watched())

	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-kick:
		}

		select {
		case <-time.After(batchDelay):
		case <-ctx.Done():
			continue
		}

		mu.Lock()
		batch := pending
		pending = nil
		mu.Unlock()
		if len(batch) == 0 {
			continue
		}

		rep, err := r.RouteFiles(ctx, lock, batch)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("routing batch failed", "files", len(batch), "error", err)
			continue
		}
		if rep != nil && len(rep.Outcomes) > 0 {
			if err := finish(rep); err != nil && !errors.Is(err, errFailures) {
				log.Warn("report not written", "error", err)
			}
		}
	}
}
