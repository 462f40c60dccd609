package cache

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no digest is recorded for a path.
var ErrNotFound = errors.New("cache entry not found")

// digestDB is the persistent half of the cache: one gob-encoded Entry per
// absolute path under keyPrefix.
type digestDB struct {
	db *badger.DB
}

func openDigestDB(dir string) (*digestDB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening digest cache %s: %w", dir, err)
	}
	return &digestDB{db: db}, nil
}

func (d *digestDB) close() error {
	return d.db.Close()
}

func (d *digestDB) load(path string) (*Entry, error) {
	entry := new(Entry)
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(MakeKey(path))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return ErrNotFound
		case err != nil:
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (d *digestDB) save(path string, entry *Entry) error {
	raw, err := entry.Encode()
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MakeKey(path), raw)
	})
}

// drop is a no-op for unknown paths.
func (d *digestDB) drop(path string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(MakeKey(path))
	})
}

// pathsUnder returns the cached paths starting with prefix.
func (d *digestDB) pathsUnder(prefix string) ([]string, error) {
	var paths []string
	seek := MakeKey(prefix)
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			paths = append(paths, ParseKey(it.Item().Key()))
		}
		return nil
	})
	return paths, err
}

// dropUnder removes every digest recorded below prefix in one write batch.
func (d *digestDB) dropUnder(prefix string) (int, error) {
	paths, err := d.pathsUnder(prefix)
	if err != nil || len(paths) == 0 {
		return 0, err
	}
	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	for _, p := range paths {
		if err := wb.Delete(MakeKey(p)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(paths), nil
}

func (d *digestDB) count() (int, error) {
	paths, err := d.pathsUnder("")
	return len(paths), err
}
