package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jamesainslie/stow/pkg/stow/fsutil"
	"github.com/jamesainslie/stow/pkg/stow/logging"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Header is the ledger's column row.
var Header = []string{"path", "filename", "sha256"}

// ErrMalformedLedger is returned when a ledger's header or CSV structure is unreadable.
var ErrMalformedLedger = errors.New("malformed inventory ledger")

// LoadReport describes rows that were not loaded.
type LoadReport struct {
	// Rows is the number of data rows read (header excluded).
	Rows int

	// InvalidDigest are rows whose sha256 column failed validation.
	InvalidDigest []Rejection

	// DuplicatePath are rows repeating a path seen on an earlier row. The first row wins.
	DuplicatePath []Rejection

	// Malformed are rows with the wrong number of columns.
	Malformed []Rejection
}

// Skipped returns the number of rows not loaded.
func (r LoadReport) Skipped() int {
	return len(r.InvalidDigest) + len(r.DuplicatePath) + len(r.Malformed)
}

// Load reads the ledger at path. A missing file yields an empty inventory.
func Load(path string) (*Inventory, LoadReport, error) {
	inv := New(path)
	var report LoadReport

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return inv, report, nil
	}
	if err != nil {
		return nil, report, types.Wrap(types.ErrIO, "open", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return inv, report, nil
	}
	if err != nil {
		return nil, report, fmt.Errorf("%w: %s: %w", ErrMalformedLedger, path, err)
	}
	if !isHeader(header) {
		return nil, report, fmt.Errorf("%w: %s: unexpected header %q", ErrMalformedLedger, path, strings.Join(header, ","))
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("%w: %s: %w", ErrMalformedLedger, path, err)
		}
		report.Rows++
		line, _ := r.FieldPos(0)

		if len(row) != len(Header) {
			report.Malformed = append(report.Malformed, Rejection{
				Line:   line,
				Reason: fmt.Sprintf("expected %d columns, got %d", len(Header), len(row)),
			})
			continue
		}

		rec := types.FileRecord{Path: row[0], Filename: row[1], Digest: types.Digest(row[2])}
		digest, err := types.ParseDigest(row[2])
		if err != nil || rec.Path == "" {
			reason := "empty path"
			if err != nil {
				reason = err.Error()
			}
			report.InvalidDigest = append(report.InvalidDigest, Rejection{Line: line, Record: rec, Reason: reason})
			continue
		}
		rec.Digest = digest

		if _, dup := inv.byPath[rec.Path]; dup {
			report.DuplicatePath = append(report.DuplicatePath, Rejection{Line: line, Record: rec, Reason: "duplicate path"})
			continue
		}
		inv.add(rec)
	}

	if report.Skipped() > 0 {
		logging.Get("inventory").Warn("ledger rows skipped on load", "ledger", path,
			"invalid_digest", len(report.InvalidDigest), "duplicate_path", len(report.DuplicatePath),
			"malformed", len(report.Malformed))
	}
	return inv, report, nil
}

func isHeader(row []string) bool {
	if len(row) != len(Header) {
		return false
	}
	for i, col := range row {
		col = strings.TrimPrefix(col, "\ufeff")
		if strings.TrimSpace(strings.ToLower(col)) != Header[i] {
			return false
		}
	}
	return true
}

// appendLedger rewrites path as its existing bytes followed by records. The
// existing content is copied verbatim so earlier rows are never re-encoded.
func appendLedger(path string, records []types.FileRecord) error {
	existing, err := os.Open(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if existing != nil {
		defer existing.Close()
	}

	mode := fsutil.ModeOr(path, 0o644)
	return fsutil.WriteAtomic(path, mode, func(w io.Writer) error {
		var copied int64
		var last byte
		if existing != nil {
			tw := &tailWriter{w: w}
			n, err := io.Copy(tw, existing)
			if err != nil {
				return fmt.Errorf("copying ledger: %w", err)
			}
			copied, last = n, tw.last
		}

		cw := csv.NewWriter(w)
		if copied == 0 {
			if err := cw.Write(Header); err != nil {
				return err
			}
		} else if last != '\n' {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		for _, rec := range records {
			if err := cw.Write([]string{rec.Path, rec.Filename, string(rec.Digest)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// tailWriter passes writes through and remembers the last byte written.
type tailWriter struct {
	w    io.Writer
	last byte
}

func (t *tailWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 {
		t.last = p[n-1]
	}
	return n, err
}
