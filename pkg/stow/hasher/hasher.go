// Package hasher computes SHA-256 content digests by streaming files through a
// fixed-size buffer. It never reads a whole file into memory and never writes.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// BufferSize is the read buffer used for streaming.
const BufferSize = 1 << 20

// Hasher computes the digest of a file.
type Hasher interface {
	Hash(path string) (types.Digest, error)
}

// Func adapts a function to the Hasher interface.
type Func func(path string) (types.Digest, error)

// Hash calls f(path).
func (f Func) Hash(path string) (types.Digest, error) {
	return f(path)
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, BufferSize)
		return &b
	},
}

// SHA256 is the streaming file hasher.
type SHA256 struct{}

// New returns a streaming SHA-256 hasher.
func New() *SHA256 {
	return &SHA256{}
}

// Hash returns the digest of the regular file at path. Failures are wrapped
// with types.ErrHash and name the path.
func (h *SHA256) Hash(path string) (types.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		metrics.HashedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return "", types.Wrap(types.ErrHash, "open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		metrics.HashedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return "", types.Wrap(types.ErrHash, "stat", path, err)
	}
	if !info.Mode().IsRegular() {
		metrics.HashedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return "", types.Wrap(types.ErrHash, "hash", path, fmt.Errorf("not a regular file (%s)", info.Mode().Type()))
	}

	digest, n, err := HashReader(f)
	metrics.HashedBytesTotal.Add(float64(n))
	if err != nil {
		metrics.HashedFilesTotal.WithLabelValues(metrics.Fail).Inc()
		return "", types.Wrap(types.ErrHash, "read", path, err)
	}
	metrics.HashedFilesTotal.WithLabelValues(metrics.Ok).Inc()
	return digest, nil
}

// HashReader streams r through SHA-256 and returns the digest and the byte count.
func HashReader(r io.Reader) (types.Digest, int64, error) {
	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)

	h := sha256.New()
	n, err := io.CopyBuffer(h, r, *bp)
	if err != nil {
		return "", n, err
	}
	return types.Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}
