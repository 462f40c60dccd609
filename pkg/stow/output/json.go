package output

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/stow/pkg/stow/types"
)

// document is the machine-readable shape shared by json and yaml. Elapsed
// is rendered as a duration string rather than nanoseconds.
type document struct {
	Operation string                  `json:"operation" yaml:"operation"`
	Source    string                  `json:"source" yaml:"source"`
	Summary   types.Summary           `json:"summary" yaml:"summary"`
	Elapsed   string                  `json:"elapsed" yaml:"elapsed"`
	Stats     map[string]int64        `json:"stats,omitempty" yaml:"stats,omitempty"`
	Outcomes  []types.Outcome         `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Matches   []types.QuarantineMatch `json:"matches,omitempty" yaml:"matches,omitempty"`
	Errors    []types.ScanError       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings  []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newDocument(r *types.Report) document {
	return document{
		Operation: r.Operation,
		Source:    r.Source,
		Summary:   r.Summary,
		Elapsed:   r.Elapsed.String(),
		Stats:     r.Stats,
		Outcomes:  r.Outcomes,
		Matches:   r.Matches,
		Errors:    r.Errors,
		Warnings:  r.Warnings,
	}
}

// JSONFormatter writes the report as one indented JSON object.
type JSONFormatter struct{}

// Format renders r as indented JSON.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newDocument(r))
}

func init() {
	register("json", &JSONFormatter{})
}

var _ Formatter = (*JSONFormatter)(nil)

// YAMLFormatter writes the same document as JSONFormatter in YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(r)); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	register("yaml", &YAMLFormatter{})
}

var _ Formatter = (*YAMLFormatter)(nil)
