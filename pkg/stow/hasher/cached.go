package hasher

import (
	"os"

	"github.com/jamesainslie/stow/pkg/stow/cache"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Forgetter is implemented by hashers that remember digests by path.
type Forgetter interface {
	Forget(path string)
}

// Forget drops anything h remembers about the given paths. Call it once a
// file has been moved away from, or onto, a path.
func Forget(h Hasher, paths ...string) {
	f, ok := h.(Forgetter)
	if !ok {
		return
	}
	for _, p := range paths {
		f.Forget(p)
	}
}

// Cached reuses digests from a cache.Cache while a file's stamp (size,
// mtime, ctime and inode) is unchanged.
type Cached struct {
	inner Hasher
	cache *cache.Cache
}

// NewCached decorates inner with c. A nil cache disables caching.
func NewCached(inner Hasher, c *cache.Cache) Hasher {
	if c == nil {
		return inner
	}
	return &Cached{inner: inner, cache: c}
}

// Hash returns the cached digest when valid, otherwise hashes and records it.
func (h *Cached) Hash(path string) (types.Digest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", types.Wrap(types.ErrHash, "stat", path, err)
	}
	before := cache.StampOf(info)

	if digest, ok := h.cache.Lookup(path, before); ok {
		metrics.DigestCacheHitsTotal.Inc()
		return digest, nil
	}

	digest, err := h.inner.Hash(path)
	if err != nil {
		return "", err
	}

	// A write racing the hash changes the stamp; only cache a stable result.
	if after, err := os.Stat(path); err == nil && cache.StampOf(after) == before {
		_ = h.cache.Remember(path, before, digest)
	}
	return digest, nil
}

// Forget drops any cached digest for path.
func (h *Cached) Forget(path string) {
	_ = h.cache.Forget(path)
}
