package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/classify"
	"github.com/jamesainslie/stow/pkg/stow/output"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file>...",
	Short: "Show the category and destination folder for file names",
	Long: `Show where route would send each file, by extension alone. The files do
not have to exist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(_ *cobra.Command, args []string) error {
	dests := destinationsPreview()
	rep := &types.Report{Operation: "classify", Source: cfg.Inbox}
	for _, name := range args {
		cat := classify.Classify(filepath.Base(name))
		rep.Outcomes = append(rep.Outcomes, types.Outcome{
			Source:   name,
			Target:   filepath.Join(dests[cat], filepath.Base(name)),
			Status:   types.StatusSkipped,
			Category: cat.String(),
			Reason:   cat.String(),
		})
	}
	return output.Write(os.Stdout, outputFormat, rep)
}

// destinationsPreview resolves category folders without creating them.
func destinationsPreview() map[classify.Category]string {
	overrides := map[classify.Category]string{
		classify.Photo:    cfg.Destinations.Photo,
		classify.Music:    cfg.Destinations.Music,
		classify.Video:    cfg.Destinations.Video,
		classify.Document: cfg.Destinations.Document,
		classify.Misc:     cfg.Destinations.Misc,
	}
	dests := make(map[classify.Category]string, len(classify.All))
	for _, c := range classify.All {
		dir := overrides[c]
		if dir == "" {
			dir = classify.DefaultDirs[c]
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cfg.Library, dir)
		}
		dests[c] = filepath.Clean(dir)
	}
	return dests
}
