package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/hasher"
	"github.com/jamesainslie/stow/pkg/stow/output"
	"github.com/jamesainslie/stow/pkg/stow/scanner"
	"github.com/jamesainslie/stow/pkg/stow/workflow"
)

var indexCmd = &cobra.Command{
	Use:   "index <root>",
	Short: "Record the SHA-256 of every file under a tree",
	Long: `Scan a tree and append a record for every new file to its inventory.

The inventory is a CSV ledger (path,filename,sha256), by default
inventory.csv inside the root. Rows are only ever appended. Paths already in
the ledger are skipped, so indexing twice changes nothing. The whole batch is
refused, and the ledger left untouched, when two new files share content or
new content is already recorded under another path (allow the latter with
--allow-known).`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("ledger", "", "inventory file (default: <root>/inventory.csv)")
	indexCmd.Flags().Bool("allow-known", false, "admit content the ledger already holds under another path")
	rootCmd.AddCommand(indexCmd)
}

// scanOptions builds the scan settings shared by index, compare and quarantine.
func scanOptions(h hasher.Hasher) workflow.ScanOptions {
	opts := workflow.ScanOptions{
		Exclude:       cfg.Exclude,
		Workers:       cfg.Workers,
		Hasher:        h,
		QuarantineDir: cfg.QuarantinePath,
	}
	if cfg.Inbox != "" {
		opts.SkipPaths = append(opts.SkipPaths, cfg.DuplicatesPath())
	}
	if !getQuiet() && output.DefaultFormat(stderr) == "table" {
		opts.OnProgress = progressPrinter()
	}
	return opts
}

func runIndex(cmd *cobra.Command, args []string) error {
	root := args[0]
	ledger, _ := cmd.Flags().GetString("ledger")
	if ledger == "" {
		ledger = cfg.InventoryPath(scanner.Canonical(root))
	}
	allow, _ := cmd.Flags().GetBool("allow-known")

	lock, held, err := acquireLock()
	if err != nil || held {
		return err
	}
	defer func() { _ = lock.Release() }()

	h, closeHasher := openHasher()
	defer closeHasher()

	result, err := workflow.Index(cmd.Context(), lock, workflow.IndexOptions{
		ScanOptions:       scanOptions(h),
		Root:              root,
		Ledger:            ledger,
		AllowKnownDigests: allow,
	})
	clearProgress()
	if result == nil {
		return err
	}
	ferr := finish(result.Report())
	if err != nil {
		return err
	}
	return ferr
}
