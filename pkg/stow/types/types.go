// Package types provides core data types for stow: content digests, inventory
// records, cross-inventory matches and the per-file outcomes reported by the
// router and the workflows.
package types

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DigestLen is the length of a hex-encoded SHA-256 digest.
const DigestLen = 64

// digestPattern matches a canonical (lowercase) SHA-256 digest.
var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Digest is a hex-encoded SHA-256 content digest. The canonical form is lowercase.
type Digest string

// ParseDigest normalizes s to lowercase and validates it.
// Returns ErrInvalidDigest if the result is not 64 hex characters.
func ParseDigest(s string) (Digest, error) {
	d := Digest(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDigest, s)
	}
	return d, nil
}

// Valid reports whether d is in canonical form.
func (d Digest) Valid() bool {
	return digestPattern.MatchString(string(d))
}

// Short returns an abbreviated digest for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

func (d Digest) String() string {
	return string(d)
}

// FileRecord is one row of an inventory: where a file lives and what it contains.
type FileRecord struct {
	// Path is the absolute, symlink-resolved path of the file.
	Path string `json:"path" yaml:"path"`

	// Filename is the base name of Path.
	Filename string `json:"filename" yaml:"filename"`

	// Digest is the SHA-256 of the file's content.
	Digest Digest `json:"digest" yaml:"digest"`
}

// NewFileRecord builds a record for path, deriving Filename from it.
func NewFileRecord(path string, digest Digest) FileRecord {
	return FileRecord{
		Path:     path,
		Filename: filepath.Base(path),
		Digest:   digest,
	}
}

// Validate checks the record's path and digest.
func (r FileRecord) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidRecord)
	}
	if !r.Digest.Valid() {
		return fmt.Errorf("%w: %s: digest %q", ErrInvalidDigest, r.Path, string(r.Digest))
	}
	return nil
}

// QuarantineMatch pairs a master record with a compared record of identical content.
type QuarantineMatch struct {
	MasterPath       string `json:"master_path" yaml:"master_path"`
	ComparedPath     string `json:"compared_path" yaml:"compared_path"`
	MasterFilename   string `json:"master_filename" yaml:"master_filename"`
	ComparedFilename string `json:"compared_filename" yaml:"compared_filename"`
}

// Status is the terminal state of one file in a run.
type Status string

const (
	// StatusMoved means the file was placed at its destination under its own name.
	StatusMoved Status = "moved"
	// StatusDuplicate means identical content already existed; the file went to Duplicates.
	StatusDuplicate Status = "duplicate"
	// StatusRenamed means a different file held the name; the file was placed as "name (n)".
	StatusRenamed Status = "renamed"
	// StatusQuarantined means the file matched master content and was moved to quarantine.
	StatusQuarantined Status = "quarantined"
	// StatusSkipped means the file needed no action.
	StatusSkipped Status = "skipped"
	// StatusFailed means the file was left where it was and needs manual review.
	StatusFailed Status = "failed"
)

// Outcome is the structured result for one file.
type Outcome struct {
	// Source is where the file was when processing started.
	Source string `json:"source" yaml:"source"`

	// Target is where the file ended up (or would, in a dry run). Empty on failure.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`

	// Status is the terminal state.
	Status Status `json:"status" yaml:"status"`

	// Category is the routing category name, if the file was classified.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Digest is set whenever the file had to be hashed.
	Digest Digest `json:"digest,omitempty" yaml:"digest,omitempty"`

	// Counter is the "(n)" suffix used for a renamed placement.
	Counter int `json:"counter,omitempty" yaml:"counter,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Reason explains failures and skips.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// DryRun is set when nothing was actually moved.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// Failed reports whether the outcome needs manual review.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// Summary aggregates outcomes of a run.
type Summary struct {
	Total       int   `json:"total" yaml:"total"`
	Moved       int   `json:"moved" yaml:"moved"`
	Duplicates  int   `json:"duplicates" yaml:"duplicates"`
	Renamed     int   `json:"renamed" yaml:"renamed"`
	Quarantined int   `json:"quarantined" yaml:"quarantined"`
	Skipped     int   `json:"skipped" yaml:"skipped"`
	Failed      int   `json:"failed" yaml:"failed"`
	TotalBytes  int64 `json:"total_bytes" yaml:"total_bytes"`
}

// Summarize counts outcomes by status.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Total++
		s.TotalBytes += o.Size
		switch o.Status {
		case StatusMoved:
			s.Moved++
		case StatusDuplicate:
			s.Duplicates++
		case StatusRenamed:
			s.Renamed++
		case StatusQuarantined:
			s.Quarantined++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// ScanError pairs a path with the error encountered while walking or hashing it.
type ScanError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// Report is everything a run produced, handed to output formatters and history.
type Report struct {
	// Operation names the workflow ("route", "index", "compare", "quarantine").
	Operation string `json:"operation" yaml:"operation"`

	// Source is the root that was processed.
	Source string `json:"source" yaml:"source"`

	Outcomes []Outcome         `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Matches  []QuarantineMatch `json:"matches,omitempty" yaml:"matches,omitempty"`
	Errors   []ScanError       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Summary  Summary           `json:"summary" yaml:"summary"`
	Elapsed  time.Duration     `json:"elapsed" yaml:"elapsed"`
	Warnings []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Stats holds operation-specific counters such as records appended.
	Stats map[string]int64 `json:"stats,omitempty" yaml:"stats,omitempty"`
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
