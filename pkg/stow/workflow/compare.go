package workflow

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jamesainslie/stow/pkg/stow/inventory"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/matcher"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// CompareOptions configures Compare.
type CompareOptions struct {
	ScanOptions

	// Master is the master ledger. It must exist.
	Master string

	// Target is either a ledger file or a directory to scan.
	Target string

	// Artifact is where the match CSV is written. Empty skips it.
	Artifact string
}

// CompareResult holds the matches between a master ledger and a target.
type CompareResult struct {
	Master        string
	Target        string
	TargetIsTree  bool
	MasterRecords int
	TargetRecords int
	Matches       []types.QuarantineMatch
	Errors        []types.ScanError
	Artifact      string
	Elapsed       time.Duration

	master *inventory.Inventory
}

// Compare pairs every target record with every master record of equal
// content. It is read-only apart from the artifact.
func Compare(ctx context.Context, opts CompareOptions) (*CompareResult, error) {
	start := time.Now()
	log := logging.Get("workflow")

	masterPath := scanner.Canonical(opts.Master)
	if _, err := os.Stat(masterPath); err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "master ledger", opts.Master, err)
	}
	master, _, err := inventory.Load(masterPath)
	if err != nil {
		return nil, err
	}

	targetPath := scanner.Canonical(opts.Target)
	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, "compare target", opts.Target, err)
	}

	result := &CompareResult{
		Master:        masterPath,
		Target:        targetPath,
		TargetIsTree:  info.IsDir(),
		MasterRecords: master.Len(),
		master:        master,
	}

	var target *inventory.Inventory
	if info.IsDir() {
		skip := []string{masterPath}
		if opts.Artifact != "" {
			skip = append(skip, scanner.Canonical(opts.Artifact))
		}
		scan, err := opts.scan(ctx, targetPath, skip...)
		if err != nil {
			return nil, err
		}
		result.Errors = scan.Errors
		target = inventory.FromRecords(scan.Records)
	} else {
		target, _, err = inventory.Load(targetPath)
		if err != nil {
			return nil, err
		}
	}
	result.TargetRecords = target.Len()
	result.Matches = matcher.Match(master, target)

	if opts.Artifact != "" {
		if err := matcher.WriteArtifact(opts.Artifact, result.Matches); err != nil {
			return nil, err
		}
		result.Artifact = opts.Artifact
	}
	result.Elapsed = time.Since(start)
	metrics.MarkRun(OpCompare)

	log.Info("compare complete", "master", masterPath, "target", targetPath,
		"matches", len(result.Matches), "artifact", result.Artifact)
	return result, nil
}

// digestOf returns the master digest for a match.
func (r *CompareResult) digestOf(m types.QuarantineMatch) (types.Digest, error) {
	rec, ok := r.master.Get(m.MasterPath)
	if !ok {
		return "", errors.New("master record vanished")
	}
	return rec.Digest, nil
}

// Report summarises the comparison for output and history.
func (r *CompareResult) Report() *types.Report {
	return &types.Report{
		Operation: OpCompare,
		Source:    r.Target,
		Matches:   r.Matches,
		Errors:    r.Errors,
		Elapsed:   r.Elapsed,
		Summary:   types.Summary{Total: len(r.Matches), Failed: len(r.Errors)},
		Stats: map[string]int64{
			"master_records": int64(r.MasterRecords),
			"target_records": int64(r.TargetRecords),
			"matches":        int64(len(r.Matches)),
		},
	}
}
