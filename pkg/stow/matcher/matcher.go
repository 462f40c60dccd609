// Package matcher pairs records of two inventories that share content. Every
// master record is paired with every target record of the same digest.
package matcher

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jamesainslie/stow/pkg/stow/fsutil"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Source is the read view of an inventory a match needs.
type Source interface {
	Digests() []types.Digest
	Lookup(digest types.Digest) []types.FileRecord
}

// Match returns the cross product of master and target records for every
// digest present in both. Output is ordered by digest, then by each side's
// ledger order. An empty result is not an error.
func Match(master, target Source) []types.QuarantineMatch {
	var out []types.QuarantineMatch
	for _, digest := range master.Digests() {
		targets := target.Lookup(digest)
		if len(targets) == 0 {
			continue
		}
		for _, m := range master.Lookup(digest) {
			for _, t := range targets {
				out = append(out, types.QuarantineMatch{
					MasterPath:       m.Path,
					ComparedPath:     t.Path,
					MasterFilename:   m.Filename,
					ComparedFilename: t.Filename,
				})
			}
		}
	}
	return out
}

// ArtifactHeader is the comparison artifact's column row.
var ArtifactHeader = []string{"master_path", "compared_path", "master_filename", "compared_filename"}

// ErrMalformedArtifact is returned when an artifact cannot be parsed.
var ErrMalformedArtifact = errors.New("malformed comparison artifact")

// WriteArtifact writes matches as CSV to path, replacing it atomically.
func WriteArtifact(path string, matches []types.QuarantineMatch) error {
	err := fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return EncodeArtifact(w, matches)
	})
	if err != nil {
		return types.Wrap(types.ErrIO, "write artifact", path, err)
	}
	return nil
}

// EncodeArtifact writes matches as CSV, header first.
func EncodeArtifact(w io.Writer, matches []types.QuarantineMatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ArtifactHeader); err != nil {
		return err
	}
	for _, m := range matches {
		if err := cw.Write([]string{m.MasterPath, m.ComparedPath, m.MasterFilename, m.ComparedFilename}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadArtifact reads an artifact written by WriteArtifact.
func ReadArtifact(path string) ([]types.QuarantineMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.Wrap(types.ErrIO, "open artifact", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(ArtifactHeader)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArtifact, path, err)
	}
	if strings.Join(header, ",") != strings.Join(ArtifactHeader, ",") {
		return nil, fmt.Errorf("%w: %s: unexpected header %q", ErrMalformedArtifact, path, strings.Join(header, ","))
	}

	var out []types.QuarantineMatch
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedArtifact, path, err)
		}
		out = append(out, types.QuarantineMatch{
			MasterPath:       row[0],
			ComparedPath:     row[1],
			MasterFilename:   row[2],
			ComparedFilename: row[3],
		})
	}
	return out, nil
}
