package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/resolver"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Operation names routing runs in reports, history and metrics.
const Operation = "route"

// Router routes Inbox files to their category folders.
type Router struct {
	opts     Options
	inbox    string
	dupsDir  string
	exclude  *scanner.Excluder
	resolver *resolver.Resolver
	locks    *keyedMutex
	log      *logging.Logger

	// planned holds dry-run placements (target -> source) so later files
	// in the same run see them as occupied.
	planMu  sync.Mutex
	planned map[string]string
}

// New validates opts and creates a Router.
func New(opts Options) (*Router, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	r := &Router{
		opts:    opts,
		inbox:   scanner.Canonical(opts.Inbox),
		dupsDir: scanner.Canonical(opts.DuplicatesDir),
		locks:   newKeyedMutex(),
		log:     logging.Get("router"),
		planned: make(map[string]string),
	}

	skip := []string{r.dupsDir}
	dests := make(map[classify.Category]string, len(opts.Destinations))
	for cat, dir := range opts.Destinations {
		canonical := scanner.Canonical(dir)
		if canonical == r.dupsDir {
			return nil, types.Wrap(types.ErrConfiguration, "route", dir,
				fmt.Errorf("%s destination is the duplicates folder", cat))
		}
		dests[cat] = canonical
		skip = append(skip, canonical)
	}
	r.opts.Destinations = dests

	exclude, err := scanner.NewExcluder(opts.Exclude, skip)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "exclude", "", err)
	}
	r.exclude = exclude
	r.resolver = resolver.New(opts.Hasher, r.dupsDir, resolver.WithLocator(r.locate))
	return r, nil
}

// Inbox returns the canonical Inbox path.
func (r *Router) Inbox() string { return r.inbox }

// Excluder returns the filter applied to Inbox entries, for watchers that
// must ignore the same paths.
func (r *Router) Excluder() *scanner.Excluder { return r.exclude }

// Run routes every file currently in the Inbox, in sorted order. Per-file
// failures are reported in the outcomes; an error is returned only for an
// unusable Inbox, a missing run lock, or cancellation (with the partial report).
func (r *Router) Run(ctx context.Context, lock *runlock.Lock) (*types.Report, error) {
	if err := runlock.Require(lock); err != nil {
		return nil, err
	}
	start := time.Now()

	files, walkErrs, err := scanner.List(ctx, r.inbox, r.exclude)
	if err != nil {
		return nil, err
	}
	r.log.Info("routing inbox", "inbox", r.inbox, "files", len(files), "dry_run", r.opts.DryRun)

	outcomes, err := r.route(ctx, files)
	report := r.report(outcomes, walkErrs, time.Since(start))
	return report, err
}

// RouteFiles routes the given Inbox paths. Paths outside the Inbox or
// excluded from routing are ignored.
func (r *Router) RouteFiles(ctx context.Context, lock *runlock.Lock, paths []string) (*types.Report, error) {
	if err := runlock.Require(lock); err != nil {
		return nil, err
	}
	start := time.Now()

	var files []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs := scanner.Canonical(p)
		if seen[abs] || !isSubPath(abs, r.inbox) || r.exclude.Match(abs) {
			continue
		}
		seen[abs] = true
		files = append(files, abs)
	}
	sort.Strings(files)

	outcomes, err := r.route(ctx, files)
	return r.report(outcomes, nil, time.Since(start)), err
}

func (r *Router) report(outcomes []types.Outcome, errs []types.ScanError, elapsed time.Duration) *types.Report {
	metrics.ObserveOutcomes(Operation, outcomes)
	metrics.MarkRun(Operation)

	summary := types.Summarize(outcomes)
	r.log.Info("routing complete",
		"moved", summary.Moved, "duplicates", summary.Duplicates, "renamed", summary.Renamed,
		"failed", summary.Failed, "skipped", summary.Skipped, "elapsed", elapsed.Round(time.Millisecond))

	var warnings []string
	if r.opts.DryRun {
		warnings = append(warnings, "dry run: nothing was moved")
	}
	return &types.Report{
		Operation: Operation,
		Source:    r.inbox,
		Outcomes:  outcomes,
		Errors:    errs,
		Summary:   summary,
		Elapsed:   elapsed,
		Warnings:  warnings,
	}
}

// route groups files by destination folder. Each group is worked through in
// sorted order by one goroutine, so "(n)" numbering is reproducible; groups
// run concurrently up to Workers.
func (r *Router) route(ctx context.Context, files []string) ([]types.Outcome, error) {
	type job struct {
		index int
		cat   classify.Category
	}
	groups := make(map[string][]job)
	for i, f := range files {
		cat := classify.Classify(filepath.Base(f))
		dir := r.opts.Destinations[cat]
		groups[dir] = append(groups[dir], job{index: i, cat: cat})
	}
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	outcomes := make([]types.Outcome, len(files))
	done := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, dir := range dirs {
		jobs := groups[dir]
		g.Go(func() error {
			for _, j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				out := r.routeFile(files[j.index], j.cat, dir)
				outcomes[j.index] = out
				done[j.index] = true
				if r.opts.OnOutcome != nil {
					r.opts.OnOutcome(out)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	completed := make([]types.Outcome, 0, len(files))
	for i, ok := range done {
		if ok {
			completed = append(completed, outcomes[i])
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return completed, ctxErr
	}
	return completed, err
}

// routeFile runs one file through classify, resolve and place. It never
// returns an error: every failure is an outcome.
func (r *Router) routeFile(source string, cat classify.Category, destDir string) types.Outcome {
	out := types.Outcome{Source: source, Category: cat.String(), DryRun: r.opts.DryRun}

	info, err := os.Lstat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return r.skip(out, "vanished before routing")
		}
		return r.fail(out, types.Wrap(types.ErrIO, "stat", source, err))
	}
	if !info.Mode().IsRegular() {
		return r.skip(out, "not a regular file")
	}
	out.Size = info.Size()

	name := filepath.Base(source)
	destination := filepath.Join(destDir, name)

	unlock := r.locks.Lock(destDir)
	defer unlock()

	d := r.resolver.Resolve(source, destination)
	out.Digest = d.Digest
	out.Counter = d.Counter

	switch d.Kind {
	case resolver.Failed:
		return r.fail(out, d.Err)
	case resolver.NoCollision:
		out.Status = types.StatusMoved
	case resolver.Renamed:
		out.Status = types.StatusRenamed
		out.Reason = "name taken by different content at " + d.Existing
	case resolver.Identical:
		out.Status = types.StatusDuplicate
		out.Reason = "identical to " + d.Existing

		// The duplicates folder is shared by every group; pick the free
		// name again while holding its lock.
		unlockDups := r.locks.Lock(r.dupsDir)
		defer unlockDups()
		target, n, err := r.resolver.FreeName(r.dupsDir, name)
		if err != nil {
			return r.fail(out, err)
		}
		d.Target, out.Counter = target, n
	}

	if err := r.place(source, d.Target); err != nil {
		return r.fail(out, err)
	}
	out.Target = d.Target

	r.log.Info("routed", "source", source, "target", out.Target, "status", out.Status,
		"category", out.Category, "dry_run", out.DryRun)
	return out
}

func (r *Router) place(source, target string) error {
	if !r.opts.DryRun {
		if err := r.opts.Placer.Place(source, target); err != nil {
			return err
		}
		hasher.Forget(r.opts.Hasher, source, target)
		return nil
	}
	r.planMu.Lock()
	defer r.planMu.Unlock()
	if _, taken := r.planned[target]; taken {
		return types.Wrap(types.ErrIO, "plan", target, types.ErrDestinationExists)
	}
	r.planned[target] = source
	return nil
}

// locate treats dry-run placements as occupied by their source file.
func (r *Router) locate(path string) (string, bool) {
	if r.opts.DryRun {
		r.planMu.Lock()
		src, ok := r.planned[path]
		r.planMu.Unlock()
		if ok {
			return src, true
		}
	}
	return resolver.FilesystemLocator(path)
}

func (r *Router) skip(out types.Outcome, reason string) types.Outcome {
	out.Status = types.StatusSkipped
	out.Reason = reason
	r.log.Debug("skipped", "source", out.Source, "reason", reason)
	return out
}

func (r *Router) fail(out types.Outcome, err error) types.Outcome {
	out.Status = types.StatusFailed
	out.Target = ""
	out.Reason = err.Error()

	kind := "io"
	switch {
	case errors.Is(err, types.ErrHash):
		kind = "hash"
	case errors.Is(err, types.ErrExhaustedRenames):
		kind = "exhausted"
	case errors.Is(err, types.ErrDestinationExists):
		kind = "destination_exists"
	}
	r.log.Warn("left in inbox for review", "source", out.Source, "kind", kind,
		"digest", out.Digest.Short(), "error", err)
	return out
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
