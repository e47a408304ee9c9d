package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/mcpserver"
	"github.com/agentfleet/agentmaild/internal/webui"
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Serve the MCP tool surface and the overseer dashboard over HTTP",
	Long: `Start the streamable-HTTP MCP listener agents call at /mcp/, and the
overseer-facing dashboard (JSON API plus a live websocket feed) at /.

Every successful send_message/reply_message call is broadcast to the
dashboard's websocket clients as it happens, in addition to agents
polling fetch_inbox.`,
	Args: cobra.NoArgs,
	RunE: runServeHTTP,
}

func init() {
	rootCmd.AddCommand(serveHTTPCmd)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	store, err := index.Open(filepath.Join(cfg.StorageRoot, "index.sqlite3"))
	if err != nil {
		exitCode = 2
		return fmt.Errorf("opening index: %w", err)
	}
	defer store.Close()

	eng := engine.New(cfg.StorageRoot, store, nil, cfg.LLM.DefaultModel)
	eng.SetContactEnforcement(cfg.Policy.ContactEnforcementEnabled)

	mcpSrv := mcpserver.New(eng)
	mcpHandler := mcpserver.Handler(mcpSrv, mcpserver.HTTPConfig{
		BearerToken:                   cfg.HTTP.BearerToken,
		AllowLocalhostUnauthenticated: cfg.HTTP.AllowLocalhostUnauthenticated,
	})

	webuiSrv := webui.New(eng)
	eng.SetMessageHook(func(humanKey string, res mailbox.SendResult) {
		webuiSrv.Broadcast("message", map[string]any{"project": humanKey, "message": res})
	})

	mux := http.NewServeMux()
	mux.Handle("/mcp/", mcpHandler)
	mux.Handle("/", webuiSrv)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // disabled: /mcp/ and /ws are long-lived streams
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("agentmaild listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			exitCode = 2
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		exitCode = 2
		return fmt.Errorf("server: %w", err)
	}
}
