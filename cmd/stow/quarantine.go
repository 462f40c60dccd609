package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/workflow"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine <master-ledger> <target-root>",
	Short: "Move a tree's files whose content the master inventory holds",
	Long: `Compare a target against a master inventory and move every target file
whose content the master already holds into a quarantine folder.

Files keep their path relative to the target root inside the quarantine
folder (default: <target-root>/Quarantine). A target file that is itself a
master path is never moved, and each file is hashed again right before the
move so files changed since the master was indexed stay put. Use --dry-run
to review the plan first.`,
	Args: cobra.ExactArgs(2),
	RunE: runQuarantine,
}

func init() {
	quarantineCmd.Flags().String("dir", "", "quarantine folder (default: <target-root>/Quarantine)")
	quarantineCmd.Flags().String("artifact", "", "match CSV to write (default: quarantine_matches.csv next to the master ledger, \"-\" to skip)")
	rootCmd.AddCommand(quarantineCmd)
}

func runQuarantine(cmd *cobra.Command, args []string) error {
	master, target := args[0], args[1]
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.QuarantinePath(scanner.Canonical(target))
	}

	lock, held, err := acquireLock()
	if err != nil || held {
		return err
	}
	defer func() { _ = lock.Release() }()

	h, closeHasher := openHasher()
	defer closeHasher()

	rep, err := workflow.Quarantine(cmd.Context(), lock, workflow.QuarantineOptions{
		CompareOptions: workflow.CompareOptions{
			ScanOptions: scanOptions(h),
			Master:      master,
			Target:      target,
			Artifact:    artifactPath(cmd, master),
		},
		Dir:    dir,
		DryRun: cfg.DryRun,
	})
	clearProgress()
	if rep == nil {
		return err
	}
	ferr := finish(rep)
	if err != nil {
		return err
	}
	return ferr
}
