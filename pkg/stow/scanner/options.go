// Package scanner walks a directory tree in parallel and hashes every regular
// file into an inventory record. Per-file failures are collected, never fatal.
package scanner

import (
	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// DefaultWorkers is the default hashing concurrency.
const DefaultWorkers = 32

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// Exclude contains glob patterns. A pattern matches against the full path
	// and against the base name; matching directories are not descended.
	Exclude []string

	// SkipPaths are files or directory subtrees never recorded, such as the
	// inventory ledger itself and the quarantine folder.
	SkipPaths []string

	// Workers bounds concurrent hashing. Values below 1 use DefaultWorkers.
	Workers int

	// Hasher computes digests. Nil uses a streaming SHA-256 hasher.
	Hasher hasher.Hasher

	// OnRecord is called for every hashed file, from multiple goroutines.
	OnRecord func(types.FileRecord)

	// OnProgress is called periodically, from multiple goroutines.
	OnProgress func(Progress)
}

// Validate applies defaults.
func (o *Options) Validate() error {
	if o.Root == "" {
		return types.Wrap(types.ErrConfiguration, "scan", "", errEmptyRoot)
	}
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.Hasher == nil {
		o.Hasher = hasher.New()
	}
	return nil
}

// Progress is a snapshot of a running scan.
type Progress struct {
	FilesSeen   int64  `json:"files_seen"`
	FilesHashed int64  `json:"files_hashed"`
	BytesHashed int64  `json:"bytes_hashed"`
	Errors      int64  `json:"errors"`
	CurrentPath string `json:"current_path"`
}
