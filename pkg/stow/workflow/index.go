// Package workflow runs the inventory workflows: indexing a tree into its
// ledger, comparing a tree against a master ledger, and quarantining the
// compared files whose content the master already holds.
package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/inventory"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/runlock"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Operation names.
const (
	OpIndex      = "index"
	OpCompare    = "compare"
	OpQuarantine = "quarantine"
)

// DefaultQuarantineDir is the quarantine folder inside a scanned root when
// ScanOptions.QuarantineDir is nil.
const DefaultQuarantineDir = "Quarantine"

// ScanOptions are the scan settings shared by every workflow.
type ScanOptions struct {
	Exclude   []string
	SkipPaths []string
	Workers   int
	Hasher    hasher.Hasher

	// QuarantineDir names the quarantine folder for a scanned root. That
	// folder is never recorded, so quarantined files do not come back
	// through index or compare.
	QuarantineDir func(root string) string

	OnProgress func(scanner.Progress)
}

func (o ScanOptions) quarantineDir(root string) string {
	if o.QuarantineDir != nil {
		return o.QuarantineDir(root)
	}
	return filepath.Join(root, DefaultQuarantineDir)
}

func (o ScanOptions) scan(ctx context.Context, root string, skip ...string) (*scanner.Result, error) {
	skipPaths := append(append([]string(nil), o.SkipPaths...), skip...)
	skipPaths = append(skipPaths, scanner.Canonical(o.quarantineDir(root)))
	s, err := scanner.New(scanner.Options{
		Root:       root,
		Exclude:    o.Exclude,
		SkipPaths:  skipPaths,
		Workers:    o.Workers,
		Hasher:     o.Hasher,
		OnProgress: o.OnProgress,
	})
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx)
}

// IndexOptions configures Index.
type IndexOptions struct {
	ScanOptions

	// Root is the tree to index.
	Root string

	// Ledger is the inventory file. Empty means inventory.csv inside Root.
	Ledger string

	// AllowKnownDigests admits content the ledger already holds under
	// another path.
	AllowKnownDigests bool
}

// IndexResult describes an index run. Merge is zero when the merge was refused.
type IndexResult struct {
	Ledger  string
	Load    inventory.LoadReport
	Scan    *scanner.Result
	Merge   inventory.MergeResult
	Elapsed time.Duration
}

// Index scans Root and merges the records into the ledger. An
// *inventory.InvariantError is returned, with the partial result, when the
// batch would break the ledger's digest rules; the ledger is then untouched.
func Index(ctx context.Context, lock *runlock.Lock, opts IndexOptions) (*IndexResult, error) {
	if err := runlock.Require(lock); err != nil {
		return nil, err
	}
	start := time.Now()
	log := logging.Get("workflow")

	root := scanner.Canonical(opts.Root)
	ledger := opts.Ledger
	if ledger == "" {
		ledger = filepath.Join(root, "inventory.csv")
	}
	ledger = scanner.Canonical(ledger)

	inv, load, err := inventory.Load(ledger)
	if err != nil {
		return nil, err
	}
	result := &IndexResult{Ledger: ledger, Load: load}
	log.Info("indexing", "root", root, "ledger", ledger, "known", inv.Len())

	scan, err := opts.scan(ctx, root, ledger)
	if err != nil {
		return nil, err
	}
	result.Scan = scan

	merge, err := inv.Merge(scan.Records, inventory.MergeOptions{AllowKnownDigests: opts.AllowKnownDigests})
	result.Elapsed = time.Since(start)
	if err != nil {
		return result, err
	}
	result.Merge = merge
	metrics.MarkRun(OpIndex)

	log.Info("index complete", "ledger", ledger, "appended", len(merge.Appended),
		"skipped_existing", merge.SkippedExisting, "errors", len(scan.Errors))
	return result, nil
}

// Report summarises the run for output and history.
func (r *IndexResult) Report() *types.Report {
	rep := &types.Report{
		Operation: OpIndex,
		Source:    r.Ledger,
		Elapsed:   r.Elapsed,
		Stats: map[string]int64{
			"appended":         int64(len(r.Merge.Appended)),
			"skipped_existing": int64(r.Merge.SkippedExisting),
			"rejected":         int64(len(r.Merge.Rejected)),
			"load_skipped":     int64(r.Load.Skipped()),
		},
	}
	if r.Scan != nil {
		rep.Source = r.Scan.Root
		rep.Errors = r.Scan.Errors
		rep.Stats["files_hashed"] = r.Scan.FilesHashed
		rep.Stats["bytes_hashed"] = r.Scan.BytesHashed
		rep.Stats["excluded"] = r.Scan.Excluded
	}
	rep.Summary = types.Summary{
		Total:   len(r.Merge.Appended) + r.Merge.SkippedExisting + r.Merge.SkippedRepeated,
		Skipped: r.Merge.SkippedExisting + r.Merge.SkippedRepeated,
		Failed:  len(rep.Errors) + len(r.Merge.Rejected),
	}
	if r.Scan != nil {
		rep.Summary.TotalBytes = r.Scan.BytesHashed
	}
	for _, rej := range r.Merge.Rejected {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("rejected %s: %s", rej.Record.Path, rej.Reason))
	}
	if n := r.Load.Skipped(); n > 0 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d ledger rows skipped on load", n))
	}
	return rep
}
