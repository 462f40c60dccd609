package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/history"
	"github.com/jamesainslie/stow/pkg/stow/output"
	"github.com/jamesainslie/stow/pkg/stow/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past runs",
	Long: `List recorded runs, newest first. Every route, index, compare and
quarantine run is recorded with its per-file outcomes.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report of one run",
	Long:  `Show the report of a recorded run. A unique ID prefix is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove runs older than the retention period",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyCleanCmd.Flags().Int("days", 0, "retention in days (default: history.retention_days)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	store, err := history.New(cfg.HistoryPath())
	if err != nil {
		return err
	}
	entries, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		printInfo("No history entries found.")
		return nil
	}

	fmt.Printf("%-45s  %-10s  %-20s  %s\n", "ID", "OPERATION", "TIME", "SUMMARY")
	fmt.Println(strings.Repeat("-", 100))
	for _, e := range entries {
		summary := ""
		if e.Report != nil {
			summary = summarize(e.Report.Summary)
		}
		if e.DryRun {
			summary += " (dry run)"
		}
		fmt.Printf("%-45s  %-10s  %-20s  %s\n",
			e.ID, e.Operation, e.Timestamp.Local().Format("2006-01-02 15:04:05"), summary)
	}
	fmt.Println(strings.Repeat("-", 100))
	printInfo("Use 'stow history show <id>' for details.")
	return nil
}

func summarize(s types.Summary) string {
	return fmt.Sprintf("%d files, %d moved, %d renamed, %d dup, %d quarantined, %d failed",
		s.Total, s.Moved, s.Renamed, s.Duplicates, s.Quarantined, s.Failed)
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	store, err := history.New(cfg.HistoryPath())
	if err != nil {
		return err
	}
	entry, err := store.Get(args[0])
	if err != nil {
		return err
	}
	if entry.Report == nil {
		return fmt.Errorf("history entry %s has no report", entry.ID)
	}
	printInfo("%s at %s", entry.ID, entry.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	return output.Write(os.Stdout, outputFormat, entry.Report)
}

func runHistoryClean(cmd *cobra.Command, _ []string) error {
	days := cfg.History.RetentionDays
	if cmd.Flags().Changed("days") {
		days, _ = cmd.Flags().GetInt("days")
	}
	store, err := history.New(cfg.HistoryPath())
	if err != nil {
		return err
	}
	n, err := store.Cleanup(days)
	if err != nil {
		return err
	}
	printInfo("Removed %d entries older than %d days.", n, days)
	return nil
}
