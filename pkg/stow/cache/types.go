// Package cache persists file digests between runs so unchanged files are not
// rehashed. Entries live in a Badger database keyed by absolute path and are
// trusted only while the file's size and modification time still match.
package cache

import (
	"bytes"
	"encoding/gob"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// CacheVersion is incremented when the entry format changes.
const CacheVersion = 2

// keyPrefix namespaces digest entries by format version.
var keyPrefix = []byte("d2\x00")

// Entry is one cached digest together with the file attributes it was computed from.
type Entry struct {
	Stamp                 // File identity when hashed
	Digest   types.Digest // Content digest
	HashedAt int64        // When the digest was computed, UnixNano
}

// Matches reports whether the entry is still valid for a file with stamp s.
func (e *Entry) Matches(s Stamp) bool {
	return e.Stamp == s && e.Digest.Valid()
}

// Encode serializes the entry to bytes using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes bytes into the entry using gob.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// MakeKey creates the cache key for an absolute path.
func MakeKey(path string) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(path))
	key = append(key, keyPrefix...)
	return append(key, path...)
}

// ParseKey extracts the path from a cache key.
func ParseKey(key []byte) string {
	return string(bytes.TrimPrefix(key, keyPrefix))
}
