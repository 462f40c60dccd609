package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/stow/pkg/stow/config"
	"github.com/jamesainslie/stow/pkg/stow/workflow"
)

var compareCmd = &cobra.Command{
	Use:   "compare <master-ledger> <target-root|target-ledger>",
	Short: "List files of a target whose content a master inventory already holds",
	Long: `Compare a target against a master inventory by content.

The target is either another inventory file or a directory, which is hashed
on the fly. Every pair of master and target files with equal SHA-256 is
listed and written to a CSV artifact
(master_path,compared_path,master_filename,compared_filename). Nothing is
moved.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().String("artifact", "", "match CSV to write (default: quarantine_matches.csv next to the master ledger, \"-\" to skip)")
	rootCmd.AddCommand(compareCmd)
}

// artifactPath resolves the --artifact flag for a master ledger.
func artifactPath(cmd *cobra.Command, master string) string {
	artifact, _ := cmd.Flags().GetString("artifact")
	switch artifact {
	case "-":
		return ""
	case "":
		return filepath.Join(filepath.Dir(master), config.DefaultArtifactName)
	default:
		return artifact
	}
}

func runCompare(cmd *cobra.Command, args []string) error {
	master, target := args[0], args[1]

	h, closeHasher := openHasher()
	defer closeHasher()

	result, err := workflow.Compare(cmd.Context(), workflow.CompareOptions{
		ScanOptions: scanOptions(h),
		Master:      master,
		Target:      target,
		Artifact:    artifactPath(cmd, master),
	})
	clearProgress()
	if err != nil {
		return err
	}
	if result.Artifact != "" {
		printInfo("matches written to %s", result.Artifact)
	}
	return finish(result.Report())
}
