package output

import (
	"bytes"
	"encoding/csv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// TableFormatter draws a rounded box table followed by the summary line.
type TableFormatter struct{}

// Format renders the rows as a rounded go-pretty table.
func (f *TableFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	g := gridFor(r)
	if len(g.rows) > 0 {
		w.WriteString(renderTable(g))
		w.WriteByte('\n')
	}
	for _, e := range r.Errors {
		w.WriteString("error: " + e.Path + ": " + e.Error + "\n")
	}
	for _, warn := range r.Warnings {
		w.WriteString("warning: " + warn + "\n")
	}
	w.WriteString(summaryLine(r))
	w.WriteByte('\n')
	return nil
}

func renderTable(g grid) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(g.headers))
	for i, h := range g.headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range g.rows {
		r := make(table.Row, len(g.headers))
		for i := range g.headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(g.headers))
	for i := range g.headers {
		align := text.AlignLeft
		if g.right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func init() {
	register("table", &TableFormatter{})
}

var _ Formatter = (*TableFormatter)(nil)

// CSVFormatter writes the detail rows as RFC 4180 CSV with a header row.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	g := gridFor(r)
	cw := csv.NewWriter(w)
	if err := cw.Write(g.headers); err != nil {
		return err
	}
	for _, row := range g.rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func init() {
	register("csv", &CSVFormatter{})
}

var _ Formatter = (*CSVFormatter)(nil)
