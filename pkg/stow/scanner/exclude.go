package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Excluder decides which paths a walk ignores.
type Excluder struct {
	globs []glob.Glob
	skip  []string
}

// NewExcluder compiles patterns and canonicalises skip paths.
func NewExcluder(patterns, skip []string) (*Excluder, error) {
	e := &Excluder{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		g, err := glob.Compile(p, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		e.globs = append(e.globs, g)
	}
	for _, s := range skip {
		if s == "" {
			continue
		}
		e.skip = append(e.skip, Canonical(s))
	}
	return e, nil
}

// Match reports whether path (absolute) is excluded.
func (e *Excluder) Match(path string) bool {
	if e == nil {
		return false
	}
	for _, s := range e.skip {
		if path == s || strings.HasPrefix(path, s+string(filepath.Separator)) {
			return true
		}
	}
	base := filepath.Base(path)
	for _, g := range e.globs {
		if g.Match(path) || g.Match(base) {
			return true
		}
	}
	return false
}

// Canonical returns the absolute, symlink-resolved form of path. When the path
// does not exist yet, the absolute form is returned.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
