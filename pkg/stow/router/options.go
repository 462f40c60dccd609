// Package router empties the Inbox: every file is classified, checked for a
// name collision at its destination and placed, moved into Duplicates, or
// renamed. Each file is handled independently; one failure never stops a run.
package router

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/mover"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// DefaultWorkers bounds how many destination folders are served at once.
const DefaultWorkers = 32

// Placer moves a file to a destination that must not exist yet.
type Placer interface {
	Place(source, destination string) error
}

// Options configures a Router.
type Options struct {
	// Inbox is the staging directory.
	Inbox string

	// Destinations maps every category to its folder.
	Destinations map[classify.Category]string

	// DuplicatesDir receives exact duplicates. It is never routed itself.
	DuplicatesDir string

	// Exclude holds glob patterns for Inbox entries to leave alone.
	Exclude []string

	// Workers bounds concurrency. Values below 1 use DefaultWorkers.
	Workers int

	// DryRun plans and reports without moving anything.
	DryRun bool

	// Hasher computes digests. Nil uses streaming SHA-256.
	Hasher hasher.Hasher

	// Placer performs moves. Nil uses mover.New().
	Placer Placer

	// OnOutcome is called once per file as it completes, possibly from
	// several goroutines.
	OnOutcome func(types.Outcome)
}

func (o *Options) validate() error {
	var problems []error
	if o.Inbox == "" {
		problems = append(problems, errors.New("inbox is not set"))
	}
	if o.DuplicatesDir == "" {
		problems = append(problems, errors.New("duplicates dir is not set"))
	}
	for _, c := range classify.All {
		if o.Destinations[c] == "" {
			problems = append(problems, fmt.Errorf("no destination for %s", c))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", types.ErrConfiguration, errors.Join(problems...))
	}

	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.Hasher == nil {
		o.Hasher = hasher.New()
	}
	if o.Placer == nil {
		o.Placer = mover.New()
	}
	return nil
}
