package main

import (
	"errors"
	"os"

	"github.com/spf13/viper"

	"github.com/jamesainslie/stow/pkg/stow/cache"
	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/history"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/output"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// acquireLock takes the run lock. held is true, with a nil lock and error,
// when another stow process already owns it.
func acquireLock() (lock *runlock.Lock, held bool, err error) {
	lock, err = runlock.Acquire(cfg.RunLockPath())
	if errors.Is(err, runlock.ErrHeld) {
		logging.Get("cli").Info("another stow run holds the lock", "lock", cfg.RunLockPath(), "detail", err)
		printInfo("another stow run is in progress (%v); nothing to do", err)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lock, false, nil
}

// openHasher returns the digest hasher, backed by the badger cache unless it
// is disabled. A cache that cannot be opened is logged and skipped.
func openHasher() (hasher.Hasher, func()) {
	plain := hasher.New()
	if !cfg.Cache.Enabled || viper.GetBool("no_cache") {
		return plain, func() {}
	}
	c, err := cache.Open(cfg.CachePath())
	if err != nil {
		logging.Get("cli").Warn("digest cache unavailable, hashing everything", "path", cfg.CachePath(), "error", err)
		return plain, func() {}
	}
	return hasher.NewCached(plain, c), func() {
		if err := c.Close(); err != nil {
			logging.Get("cli").Warn("closing digest cache", "error", err)
		}
	}
}

// finish prints rep, records it in history and turns failed outcomes into
// errFailures.
func finish(rep *types.Report) error {
	if rep == nil {
		return nil
	}
	if !getQuiet() || rep.Summary.Failed > 0 {
		if err := output.Write(os.Stdout, outputFormat, rep); err != nil {
			return err
		}
	}
	record(rep)
	if rep.Summary.Failed > 0 {
		return errFailures
	}
	return nil
}

// record saves rep to history and prunes old entries. History problems are
// logged, never fatal.
func record(rep *types.Report) {
	if !cfg.History.Enabled {
		return
	}
	log := logging.Get("cli")
	store, err := history.New(cfg.HistoryPath())
	if err != nil {
		log.Warn("history unavailable", "error", err)
		return
	}
	entry, err := store.Save(rep, cfg.DryRun)
	if err != nil {
		log.Warn("history entry not saved", "error", err)
		return
	}
	log.Debug("history entry saved", "id", entry.ID)
	if n, err := store.Cleanup(cfg.History.RetentionDays); err != nil {
		log.Warn("history cleanup failed", "error", err)
	} else if n > 0 {
		log.Debug("history pruned", "removed", n)
	}
}
