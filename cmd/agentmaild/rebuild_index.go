package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
)

var rebuildIndexCmd = &cobra.Command{
	Use:   "rebuild-index",
	Short: "Reconcile and repair the index against each project's archive",
	Long: `Compare every project's SQLite index against what a fresh read of its
git archive says it should hold, repair each dirty project's index in
place, then print a unified diff of the drift found before the repair
(this is spec.md's INDEX_ARCHIVE_MISMATCH made visible).`,
	Args: cobra.NoArgs,
	RunE: runRebuildIndex,
}

func init() {
	rootCmd.AddCommand(rebuildIndexCmd)
}

func runRebuildIndex(cmd *cobra.Command, args []string) error {
	store, err := index.Open(filepath.Join(cfg.StorageRoot, "index.sqlite3"))
	if err != nil {
		exitCode = 2
		return fmt.Errorf("opening index: %w", err)
	}
	defer store.Close()

	eng := engine.New(cfg.StorageRoot, store, nil, cfg.LLM.DefaultModel)

	reports, err := eng.Reconcile(cmd.Context(), time.Now().UTC(), true)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("reconcile: %w", err)
	}

	clean := color.New(color.FgGreen)
	dirty := color.New(color.FgYellow, color.Bold)

	for _, report := range reports {
		if report.Clean {
			clean.Printf("%s: clean (similarity %.3f)\n", report.ProjectSlug, report.Similarity)
			continue
		}
		dirty.Printf("%s: drift found (similarity %.3f), repaired\n", report.ProjectSlug, report.Similarity)
		fmt.Println(report.UnifiedDiff)
	}

	return nil
}
