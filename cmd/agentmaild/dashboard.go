package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/tui"
)

var dashboardAgentName string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard PROJECT_PATH",
	Short: "Watch a project's agents, messages, and claims in a terminal dashboard",
	Long: `Open a live terminal dashboard for the project rooted at PROJECT_PATH
(the same repository path agents pass as their project key). The
dashboard refreshes on a timer and whenever the project's archive
changes on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardAgentName, "agent", "", "agent name to highlight as \"you\" in the message view")
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		exitCode = 1
		return fmt.Errorf("dashboard requires an interactive terminal on stdout")
	}

	projectKey := args[0]

	store, err := index.Open(filepath.Join(cfg.StorageRoot, "index.sqlite3"))
	if err != nil {
		exitCode = 2
		return fmt.Errorf("opening index: %w", err)
	}
	defer store.Close()

	eng := engine.New(cfg.StorageRoot, store, nil, cfg.LLM.DefaultModel)

	proj, err := eng.EnsureProject(cmd.Context(), projectKey, time.Now().UTC())
	if err != nil {
		exitCode = 2
		return fmt.Errorf("ensure project: %w", err)
	}
	// Mirrors internal/engine's own unexported projectDir formula, the
	// one filesystem detail the dashboard needs that Engine deliberately
	// doesn't expose.
	watchDir := filepath.Join(cfg.StorageRoot, "projects", proj.Slug, "repo")

	m := tui.New(eng, projectKey, dashboardAgentName, watchDir)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		exitCode = 2
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
