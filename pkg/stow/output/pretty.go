package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// PrettyFormatter renders a colored, boxed report for terminals.
type PrettyFormatter struct{}

// Format draws the header box, the per-file view and the footer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	w.WriteString(f.header(r))
	w.WriteString("\n")

	switch {
	case len(r.Outcomes) > 0:
		w.WriteString(f.outcomes(r.Outcomes))
	case len(r.Matches) > 0:
		w.WriteString(f.matches(r.Matches))
	default:
		w.WriteString(f.stats(r.Stats))
	}

	if len(r.Errors) > 0 || len(r.Warnings) > 0 {
		w.WriteString("\n")
		for _, e := range r.Errors {
			w.WriteString(ErrorStyle.Render("✗ "+e.Path+": "+e.Error) + "\n")
		}
		for _, warn := range r.Warnings {
			w.WriteString(WarningStyle.Render("! "+warn) + "\n")
		}
	}

	w.WriteString(FooterBox.Render(summaryLine(r)))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) header(r *types.Report) string {
	lines := []string{
		TitleStyle.Render(r.Operation),
		fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)),
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) outcomes(outcomes []types.Outcome) string {
	width := 0
	for _, o := range outcomes {
		if n := len(o.Status); n > width {
			width = n
		}
	}

	var sb strings.Builder
	for _, o := range outcomes {
		status := statusStyle(o.Status).Render(padRight(string(o.Status), width))
		line := fmt.Sprintf("  %s  %s", status, ValueStyle.Render(o.Source))
		if o.Target != "" {
			line += MutedStyle.Render(" → ") + ValueStyle.Render(o.Target)
		}
		if o.Reason != "" {
			line += MutedStyle.Render("  (" + o.Reason + ")")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) matches(matches []types.QuarantineMatch) string {
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("  %s %s\n    %s %s\n",
			LabelStyle.Render("master:  "), ValueStyle.Render(m.MasterPath),
			LabelStyle.Render("compared:"), ValueStyle.Render(m.ComparedPath)))
	}
	return sb.String()
}

func (f *PrettyFormatter) stats(stats map[string]int64) string {
	if len(stats) == 0 {
		return MutedStyle.Render("  nothing to report") + "\n"
	}
	keys := statKeys(stats)
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			LabelStyle.Render(padRight(k, width)), ValueStyle.Render(statValue(k, stats[k]))))
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	register("pretty", &PrettyFormatter{})
}

var _ Formatter = (*PrettyFormatter)(nil)
