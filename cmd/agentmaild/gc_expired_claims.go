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

var gcExpiredClaimsCmd = &cobra.Command{
	Use:   "gc-expired-claims",
	Short: "Release every expired file-path claim across all projects",
	Args:  cobra.NoArgs,
	RunE:  runGCExpiredClaims,
}

func init() {
	rootCmd.AddCommand(gcExpiredClaimsCmd)
}

func runGCExpiredClaims(cmd *cobra.Command, args []string) error {
	store, err := index.Open(filepath.Join(cfg.StorageRoot, "index.sqlite3"))
	if err != nil {
		exitCode = 2
		return fmt.Errorf("opening index: %w", err)
	}
	defer store.Close()

	eng := engine.New(cfg.StorageRoot, store, nil, cfg.LLM.DefaultModel)

	n, err := eng.GCExpiredClaims(cmd.Context(), time.Now().UTC())
	if err != nil {
		exitCode = 2
		return fmt.Errorf("gc expired claims: %w", err)
	}

	color.New(color.FgGreen).Printf("released %d expired claim(s)\n", n)
	return nil
}
