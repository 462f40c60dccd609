package inventory

import (
	"fmt"
	"strings"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// maxReportedGroups caps how many digest groups an InvariantError spells out.
const maxReportedGroups = 10

// InvariantKind identifies which merge invariant a batch violated.
type InvariantKind int

const (
	// IntraBatch means two records of the same batch share a digest.
	IntraBatch InvariantKind = iota
	// KnownDigest means a batch digest is already recorded in the inventory.
	KnownDigest
)

func (k InvariantKind) String() string {
	switch k {
	case IntraBatch:
		return "intra-batch"
	case KnownDigest:
		return "known-digest"
	default:
		return "unknown"
	}
}

// DigestGroup lists the paths involved in one offending digest.
type DigestGroup struct {
	Digest types.Digest `json:"digest" yaml:"digest"`

	// Existing are paths already in the inventory (KnownDigest only).
	Existing []string `json:"existing,omitempty" yaml:"existing,omitempty"`

	// Incoming are the batch paths carrying the digest.
	Incoming []string `json:"incoming" yaml:"incoming"`
}

// InvariantError reports an aborted merge. It matches types.ErrInvariant.
type InvariantError struct {
	Kind   InvariantKind
	Groups []DigestGroup
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case IntraBatch:
		fmt.Fprintf(&b, "%s: %d digest(s) repeated within the batch", types.ErrInvariant, len(e.Groups))
	case KnownDigest:
		fmt.Fprintf(&b, "%s: %d digest(s) already present in the inventory", types.ErrInvariant, len(e.Groups))
	default:
		fmt.Fprintf(&b, "%s: %d digest group(s)", types.ErrInvariant, len(e.Groups))
	}

	for i, g := range e.Groups {
		if i == maxReportedGroups {
			fmt.Fprintf(&b, "; ... and %d more", len(e.Groups)-maxReportedGroups)
			break
		}
		if e.Kind == KnownDigest {
			fmt.Fprintf(&b, "; %s: master [%s] vs new [%s]", g.Digest,
				strings.Join(g.Existing, ", "), strings.Join(g.Incoming, ", "))
		} else {
			fmt.Fprintf(&b, "; %s: [%s]", g.Digest, strings.Join(g.Incoming, ", "))
		}
	}
	return b.String()
}

// Unwrap lets errors.Is match types.ErrInvariant.
func (e *InvariantError) Unwrap() error {
	return types.ErrInvariant
}
