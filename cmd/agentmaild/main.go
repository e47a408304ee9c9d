// Command agentmaild runs the coordination server that gives autonomous
// coding agents a shared mailbox, file-path leases, and a contact-policy
// gate over a git-backed archive.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agentfleet/agentmaild/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config

	// exitCode carries the process exit status spec.md's startup-validation
	// and runtime-error distinction calls for: 0 on success, 1 on a
	// configuration error, 2 on any other runtime error. It defaults to 2
	// so an error Execute() doesn't attribute to PersistentPreRunE still
	// exits non-zero the right way.
	exitCode = 2
)

var rootCmd = &cobra.Command{
	Use:   "agentmaild",
	Short: "Coordination server for autonomous coding agents",
	Long: `agentmaild gives a fleet of autonomous coding agents working in the
same repository a shared mailbox, file-path leases, and a contact-policy
gate, backed by a git archive and a SQLite index.

It allows you to:
  - Serve the MCP tool surface over streamable HTTP for agents to call
  - Watch a project's live state in a terminal dashboard
  - Reconcile and rebuild the index from the archive after a crash
  - Garbage-collect expired file-path claims`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			exitCode = 1
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/agentmaild/config.toml)")
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(exitCode)
	}
}
