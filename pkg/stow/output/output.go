// Package output renders run reports in the formats the CLI offers:
// table, pretty, plain, csv, json and yaml.
//
// Formatters are looked up by name:
//
//	f, err := output.Get("table")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// Formatter renders a report.
type Formatter interface {
	Format(w *bytes.Buffer, r *types.Report) error
}

// formats holds the built-in formatters. Formatters are stateless, so one
// value per name is shared by every caller. Entries are added from init.
var formats = map[string]Formatter{}

func register(name string, f Formatter) {
	if _, dup := formats[name]; dup {
		panic("output: format registered twice: " + name)
	}
	formats[name] = f
}

// Get returns the formatter for name.
func Get(name string) (Formatter, error) {
	f, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", name, strings.Join(Available(), ", "))
	}
	return f, nil
}

// Available returns the format names, sorted.
func Available() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFormat is "table" when w is a terminal and "plain" otherwise.
func DefaultFormat(w io.Writer) string {
	if isTerminal(w) {
		return "table"
	}
	return "plain"
}

// Write renders r with the named formatter and copies the result to w.
// An empty name picks DefaultFormat(w).
func Write(w io.Writer, name string, r *types.Report) error {
	if name == "" {
		name = DefaultFormat(w)
	}
	f, err := Get(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, r); err != nil {
		return fmt.Errorf("format %s: %w", name, err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
