package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// grid is the tabular view of a report shared by table, plain and csv.
type grid struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

// gridFor picks the detail rows for a report: per-file outcomes when the run
// moved files, match pairs for a comparison, and counters otherwise.
func gridFor(r *types.Report) grid {
	switch {
	case len(r.Outcomes) > 0:
		g := grid{
			headers: []string{"STATUS", "SIZE", "SOURCE", "TARGET", "REASON"},
			right:   map[int]bool{1: true},
		}
		for _, o := range r.Outcomes {
			g.rows = append(g.rows, []string{
				string(o.Status), types.FormatSize(o.Size), o.Source, o.Target, o.Reason,
			})
		}
		return g
	case len(r.Matches) > 0:
		g := grid{headers: []string{"MASTER", "COMPARED"}}
		for _, m := range r.Matches {
			g.rows = append(g.rows, []string{m.MasterPath, m.ComparedPath})
		}
		return g
	default:
		g := grid{headers: []string{"STAT", "VALUE"}, right: map[int]bool{1: true}}
		for _, k := range statKeys(r.Stats) {
			g.rows = append(g.rows, []string{k, statValue(k, r.Stats[k])})
		}
		return g
	}
}

func statKeys(stats map[string]int64) []string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func statValue(key string, v int64) string {
	if strings.HasPrefix(key, "bytes_") {
		return types.FormatSize(v)
	}
	return fmt.Sprintf("%d", v)
}

// summaryLine is the one-line totals footer.
func summaryLine(r *types.Report) string {
	s := r.Summary
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Moved, "moved")
	add(s.Renamed, "renamed")
	add(s.Duplicates, "duplicates")
	add(s.Quarantined, "quarantined")
	add(s.Skipped, "skipped")
	add(s.Failed, "failed")
	if len(r.Outcomes) == 0 && len(r.Matches) > 0 {
		parts = append(parts, fmt.Sprintf("%d matches", len(r.Matches)))
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	line := fmt.Sprintf("%s: %s", r.Operation, strings.Join(parts, ", "))
	if s.TotalBytes > 0 {
		line += fmt.Sprintf(" (%s)", types.FormatSize(s.TotalBytes))
	}
	if r.Elapsed > 0 {
		line += " in " + r.Elapsed.Round(time.Millisecond).String()
	}
	return line
}
