package cache

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// DefaultMemoSize is the number of entries kept in memory in front of the store.
const DefaultMemoSize = 4096

// Cache provides digest lookups backed by Badger with an in-memory LRU memo.
type Cache struct {
	store *digestDB
	memo  *lru.Cache
	now   func() time.Time
}

// Open opens or creates a cache at the given directory.
func Open(path string) (*Cache, error) {
	return OpenWithSize(path, DefaultMemoSize)
}

// OpenWithSize opens a cache whose memo holds up to size entries.
func OpenWithSize(path string, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	store, err := openDigestDB(path)
	if err != nil {
		return nil, err
	}

	memo, err := lru.New(size)
	if err != nil {
		_ = store.close()
		return nil, err
	}

	return &Cache{
		store: store,
		memo:  memo,
		now:   time.Now,
	}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	c.memo.Purge()
	return c.store.close()
}

// Lookup returns the cached digest for path if the entry was recorded for the
// same stamp. A stale entry is dropped and reported as a miss.
func (c *Cache) Lookup(path string, s Stamp) (types.Digest, bool) {
	entry, ok := c.entry(path)
	if !ok {
		return "", false
	}
	if !entry.Matches(s) {
		c.memo.Remove(path)
		_ = c.store.drop(path)
		return "", false
	}
	return entry.Digest, true
}

func (c *Cache) entry(path string) (*Entry, bool) {
	if v, ok := c.memo.Get(path); ok {
		return v.(*Entry), true
	}
	entry, err := c.store.load(path)
	if err != nil {
		return nil, false
	}
	c.memo.Add(path, entry)
	return entry, true
}

// Remember records digest for path as computed from a file with stamp s.
func (c *Cache) Remember(path string, s Stamp, digest types.Digest) error {
	if !digest.Valid() {
		return types.ErrInvalidDigest
	}
	entry := &Entry{
		Stamp:    s,
		Digest:   digest,
		HashedAt: c.now().UnixNano(),
	}
	if err := c.store.save(path, entry); err != nil {
		return err
	}
	c.memo.Add(path, entry)
	return nil
}

// Forget drops the entry for path, typically after the file was moved away.
func (c *Cache) Forget(path string) error {
	c.memo.Remove(path)
	err := c.store.drop(path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Clear removes all entries under the given path prefix. An empty prefix clears everything.
func (c *Cache) Clear(prefix string) (int, error) {
	c.memo.Purge()
	return c.store.dropUnder(prefix)
}

// Len returns the number of persisted entries.
func (c *Cache) Len() (int, error) {
	return c.store.count()
}
