// Package mover places files at their final destination. A move is a rename
// when source and destination share a filesystem, otherwise a verified copy
// followed by removal of the source. An existing destination is never
// overwritten.
package mover

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/metrics"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Mover executes placements.
type Mover struct {
	// rename moves src to dst without replacing an existing dst.
	rename func(src, dst string) error
	log    *logging.Logger
}

// Option configures a Mover.
type Option func(*Mover)

// WithRename replaces the no-replace rename primitive, e.g. to force the copy path.
func WithRename(fn func(src, dst string) error) Option {
	return func(m *Mover) {
		if fn != nil {
			m.rename = fn
		}
	}
}

// New creates a Mover.
func New(opts ...Option) *Mover {
	m := &Mover{
		rename: renameNoReplace,
		log:    logging.Get("mover"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Place moves source to destination, creating missing parent directories.
// It returns an error matching types.ErrDestinationExists if destination is
// taken, and types.ErrIO for every other failure. On failure the source is
// left untouched and no partial destination remains.
func (m *Mover) Place(source, destination string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return types.Wrap(types.ErrIO, "stat", source, err)
	}
	if !info.Mode().IsRegular() {
		return types.Wrap(types.ErrIO, "place", source, fmt.Errorf("not a regular file (%s)", info.Mode().Type()))
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return types.Wrap(types.ErrIO, "mkdir", filepath.Dir(destination), err)
	}
	if _, err := os.Lstat(destination); err == nil {
		return types.Wrap(types.ErrIO, "place", destination, types.ErrDestinationExists)
	}

	renameErr := m.rename(source, destination)
	if renameErr == nil {
		return nil
	}
	if errors.Is(renameErr, os.ErrExist) {
		return types.Wrap(types.ErrIO, "place", destination, types.ErrDestinationExists)
	}
	if _, err := os.Lstat(source); err != nil {
		return types.Wrap(types.ErrIO, "rename", source, renameErr)
	}

	m.log.Debug("rename failed, copying instead", "source", source, "destination", destination, "error", renameErr)
	metrics.CopyFallbacksTotal.Inc()

	if err := m.copyVerified(source, destination, info); err != nil {
		return types.Wrap(types.ErrIO, "copy", source, err)
	}

	if err := os.Remove(source); err != nil {
		m.log.Warn("failed to remove source after verified copy; both copies remain",
			"source", source, "destination", destination, "error", err)
	}
	return nil
}

// copyVerified copies src into a newly created dst, verifies size and digest,
// then applies src's mode and timestamps. dst is removed on any failure.
func (m *Mover) copyVerified(src, dst string, srcInfo os.FileInfo) (err error) {
	// Reading src below moves its atime.
	times := readTimes(src, srcInfo)

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm())
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return types.ErrDestinationExists
		}
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	srcHash := sha256.New()
	dstHash := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHash), io.TeeReader(in, srcHash))
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstHash.Sum(nil)) {
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}

	if err = os.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}
	if err = os.Chtimes(dst, times.Access, srcInfo.ModTime()); err != nil {
		return err
	}

	if times.HasBirth {
		if dstTimes := readTimes(dst, nil); dstTimes.HasBirth && !dstTimes.Birth.Equal(times.Birth) {
			m.log.Debug("creation time not preserved", "destination", dst,
				"source_birth", times.Birth, "destination_birth", dstTimes.Birth)
		}
	}
	return nil
}
