package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// PlainFormatter writes space-aligned columns with no color, then one
// "error:" or "warning:" line per problem and the summary line last. It is
// the default when stdout is not a terminal.
type PlainFormatter struct{}

func (f *PlainFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	if g := gridFor(r); len(g.rows) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
		fmt.Fprintln(tw, strings.Join(g.headers, "\t"))
		for _, row := range g.rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "error: %s: %s\n", e.Path, e.Error)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	fmt.Fprintln(w, summaryLine(r))
	return nil
}

func init() {
	register("plain", &PlainFormatter{})
}
