package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/mover"
	"github.com/jamesainslie/stow/pkg/stow/resolver"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Placer moves a file to a destination that must not exist yet.
type Placer interface {
	Place(source, destination string) error
}

// QuarantineOptions configures Quarantine.
type QuarantineOptions struct {
	CompareOptions

	// Dir receives quarantined files. Files from a scanned tree keep their
	// path relative to the tree.
	Dir string

	// DryRun plans and reports without moving anything.
	DryRun bool

	// Placer performs moves. Nil uses mover.New().
	Placer Placer
}

// candidate is one compared path with the master paths it matched.
type candidate struct {
	path     string
	match    types.QuarantineMatch
	samePath bool
}

// Quarantine compares the target against the master ledger and moves every
// compared file whose content the master holds into Dir. A compared path
// that is itself a master path is never moved, and each file is rehashed
// before the move so content changed since indexing is left alone.
func Quarantine(ctx context.Context, lock *runlock.Lock, opts QuarantineOptions) (*types.Report, error) {
	if err := runlock.Require(lock); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		return nil, types.Wrap(types.ErrConfiguration, "quarantine", opts.Target, errors.New("quarantine dir is not set"))
	}
	start := time.Now()
	log := logging.Get("workflow")

	dir := scanner.Canonical(opts.Dir)
	opts.SkipPaths = append(append([]string(nil), opts.SkipPaths...), dir)
	if opts.Hasher == nil {
		opts.Hasher = hasher.New()
	}
	if opts.Placer == nil {
		opts.Placer = mover.New()
	}

	cmp, err := Compare(ctx, opts.CompareOptions)
	if err != nil {
		return nil, err
	}

	q := &quarantiner{
		opts:    opts,
		dir:     dir,
		cmp:     cmp,
		log:     log,
		planned: make(map[string]string),
	}
	q.resolver = resolver.New(opts.Hasher, dir, resolver.WithLocator(q.locate))

	var outcomes []types.Outcome
	for _, c := range collect(cmp.Matches) {
		if err := ctx.Err(); err != nil {
			return q.report(outcomes, start), err
		}
		outcomes = append(outcomes, q.quarantine(c))
	}

	rep := q.report(outcomes, start)
	log.Info("quarantine complete", "target", cmp.Target, "dir", dir,
		"quarantined", rep.Summary.Quarantined, "skipped", rep.Summary.Skipped,
		"failed", rep.Summary.Failed, "dry_run", opts.DryRun)
	return rep, nil
}

// collect dedupes matches by compared path, keeping first-seen order.
func collect(matches []types.QuarantineMatch) []*candidate {
	var out []*candidate
	byPath := make(map[string]*candidate)
	for _, m := range matches {
		c, ok := byPath[m.ComparedPath]
		if !ok {
			c = &candidate{path: m.ComparedPath, match: m}
			byPath[m.ComparedPath] = c
			out = append(out, c)
		}
		if m.MasterPath == m.ComparedPath {
			c.samePath = true
		}
	}
	return out
}

type quarantiner struct {
	opts     QuarantineOptions
	dir      string
	cmp      *CompareResult
	resolver *resolver.Resolver
	log      *logging.Logger

	mu      sync.Mutex
	planned map[string]string
}

func (q *quarantiner) quarantine(c *candidate) types.Outcome {
	out := types.Outcome{Source: c.path, DryRun: q.opts.DryRun}

	if c.samePath {
		return skip(out, "same path as master")
	}
	info, err := os.Lstat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return skip(out, "vanished since indexing")
		}
		return q.fail(out, types.Wrap(types.ErrIO, "stat", c.path, err))
	}
	if !info.Mode().IsRegular() {
		return skip(out, "not a regular file")
	}
	out.Size = info.Size()

	want, err := q.cmp.digestOf(c.match)
	if err != nil {
		return q.fail(out, err)
	}
	got, err := q.opts.Hasher.Hash(c.path)
	if err != nil {
		return q.fail(out, err)
	}
	out.Digest = got
	if got != want {
		return skip(out, "content changed since indexing")
	}

	rel := filepath.Base(c.path)
	if q.cmp.TargetIsTree {
		if r, err := filepath.Rel(q.cmp.Target, c.path); err == nil && r != ".." && !hasDotDot(r) {
			rel = r
		}
	}
	planned := filepath.Join(q.dir, rel)
	target, n, err := q.resolver.FreeName(filepath.Dir(planned), filepath.Base(planned))
	if err != nil {
		return q.fail(out, err)
	}
	out.Counter = n

	if err := q.place(c.path, target); err != nil {
		return q.fail(out, err)
	}
	out.Status = types.StatusQuarantined
	out.Target = target
	out.Reason = "content held by master at " + c.match.MasterPath
	q.log.Info("quarantined", "source", c.path, "target", target, "master", c.match.MasterPath,
		"dry_run", q.opts.DryRun)
	return out
}

func (q *quarantiner) place(source, target string) error {
	if !q.opts.DryRun {
		if err := q.opts.Placer.Place(source, target); err != nil {
			return err
		}
		hasher.Forget(q.opts.Hasher, source, target)
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.planned[target] = source
	return nil
}

func (q *quarantiner) locate(path string) (string, bool) {
	q.mu.Lock()
	src, ok := q.planned[path]
	q.mu.Unlock()
	if ok {
		return src, true
	}
	return resolver.FilesystemLocator(path)
}

func (q *quarantiner) fail(out types.Outcome, err error) types.Outcome {
	out.Status = types.StatusFailed
	out.Target = ""
	out.Reason = err.Error()
	q.log.Warn("not quarantined", "source", out.Source, "error", err)
	return out
}

func (q *quarantiner) report(outcomes []types.Outcome, start time.Time) *types.Report {
	metrics.ObserveOutcomes(OpQuarantine, outcomes)
	metrics.MarkRun(OpQuarantine)

	rep := &types.Report{
		Operation: OpQuarantine,
		Source:    q.cmp.Target,
		Outcomes:  outcomes,
		Matches:   q.cmp.Matches,
		Errors:    q.cmp.Errors,
		Summary:   types.Summarize(outcomes),
		Elapsed:   time.Since(start),
		Stats: map[string]int64{
			"master_records": int64(q.cmp.MasterRecords),
			"target_records": int64(q.cmp.TargetRecords),
			"matches":        int64(len(q.cmp.Matches)),
		},
	}
	if q.opts.DryRun {
		rep.Warnings = append(rep.Warnings, "dry run: nothing was moved")
	}
	return rep
}

func skip(out types.Outcome, reason string) types.Outcome {
	out.Status = types.StatusSkipped
	out.Reason = reason
	return out
}

func hasDotDot(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
