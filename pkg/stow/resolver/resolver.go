// Package resolver decides what happens when an incoming file's name is
// already taken at its destination: identical content goes to the Duplicates
// holding area, different content is placed under the first free "name (n)".
package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// MaxRenameAttempts bounds the "name (n)" search.
const MaxRenameAttempts = 1000

// Kind is the terminal state of a collision decision.
type Kind int

const (
	// NoCollision means the destination name is free.
	NoCollision Kind = iota
	// Identical means the destination holds the same content.
	Identical
	// Renamed means the destination holds different content; a numbered name was chosen.
	Renamed
	// Failed means no decision could be made; the incoming file must stay where it is.
	Failed
)

func (k Kind) String() string {
	switch k {
	case NoCollision:
		return "no-collision"
	case Identical:
		return "identical"
	case Renamed:
		return "renamed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decision is the outcome of resolving one incoming file against its destination.
type Decision struct {
	Kind Kind

	// Target is where the incoming file should be placed. Empty when Failed.
	Target string

	// Existing is the occupied destination path for Identical and Renamed.
	Existing string

	// Counter is the "(n)" suffix used in Target, 0 when the plain name was free.
	Counter int

	// Digest is the incoming file's digest when it had to be hashed.
	Digest types.Digest

	// Err explains a Failed decision. It matches types.ErrHash or types.ErrExhaustedRenames.
	Err error
}

// Locator reports whether path is occupied and, if so, which real file holds
// its content. The default looks at the filesystem.
type Locator func(path string) (content string, occupied bool)

// FilesystemLocator reports a path as occupied when anything exists there.
func FilesystemLocator(path string) (string, bool) {
	if _, err := os.Lstat(path); err != nil {
		return "", false
	}
	return path, true
}

// Resolver makes collision decisions.
type Resolver struct {
	hasher        hasher.Hasher
	duplicatesDir string
	maxAttempts   int
	locate        Locator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocator replaces the filesystem existence check, e.g. to include
// placements planned by a dry run.
func WithLocator(l Locator) Option {
	return func(r *Resolver) {
		if l != nil {
			r.locate = l
		}
	}
}

// WithMaxAttempts overrides MaxRenameAttempts.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// New creates a Resolver that hashes with h and sends identical files to duplicatesDir.
func New(h hasher.Hasher, duplicatesDir string, opts ...Option) *Resolver {
	r := &Resolver{
		hasher:        h,
		duplicatesDir: duplicatesDir,
		maxAttempts:   MaxRenameAttempts,
		locate:        FilesystemLocator,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DuplicatesDir returns the holding area for identical files.
func (r *Resolver) DuplicatesDir() string {
	return r.duplicatesDir
}

// Resolve decides where incoming goes given its intended destination path.
// It never touches either file.
func (r *Resolver) Resolve(incoming, destination string) Decision {
	existing, occupied := r.locate(destination)
	if !occupied {
		return Decision{Kind: NoCollision, Target: destination}
	}

	incomingDigest, err := r.hasher.Hash(incoming)
	if err != nil {
		return failed(err)
	}
	existingDigest, err := r.hasher.Hash(existing)
	if err != nil {
		d := failed(err)
		d.Digest = incomingDigest
		return d
	}

	name := filepath.Base(destination)
	if incomingDigest == existingDigest {
		target, n, err := r.FreeName(r.duplicatesDir, name)
		if err != nil {
			d := failed(err)
			d.Digest = incomingDigest
			return d
		}
		return Decision{
			Kind:     Identical,
			Target:   target,
			Existing: destination,
			Counter:  n,
			Digest:   incomingDigest,
		}
	}

	target, n, err := r.freeNumbered(filepath.Dir(destination), name)
	if err != nil {
		d := failed(err)
		d.Digest = incomingDigest
		return d
	}
	return Decision{
		Kind:     Renamed,
		Target:   target,
		Existing: destination,
		Counter:  n,
		Digest:   incomingDigest,
	}
}

func failed(err error) Decision {
	return Decision{Kind: Failed, Err: err}
}

// FreeName returns dir/name if unoccupied, otherwise the first free numbered candidate.
func (r *Resolver) FreeName(dir, name string) (string, int, error) {
	plain := filepath.Join(dir, name)
	if _, occupied := r.locate(plain); !occupied {
		return plain, 0, nil
	}
	return r.freeNumbered(dir, name)
}

func (r *Resolver) freeNumbered(dir, name string) (string, int, error) {
	for n := 1; n <= r.maxAttempts; n++ {
		candidate := filepath.Join(dir, Candidate(name, n))
		if _, occupied := r.locate(candidate); !occupied {
			return candidate, n, nil
		}
	}
	return "", 0, types.Wrap(types.ErrExhaustedRenames, "rename",
		filepath.Join(dir, name), fmt.Errorf("no free name after %d attempts", r.maxAttempts))
}

// Candidate returns the n-th disambiguated form of name: "{base} ({n}){ext}".
func Candidate(name string, n int) string {
	base, ext := classify.SplitName(name)
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// IsHashFailure reports whether a Failed decision was caused by hashing.
func (d Decision) IsHashFailure() bool {
	return d.Kind == Failed && errors.Is(d.Err, types.ErrHash)
}
