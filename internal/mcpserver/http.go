package mcpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"
)

var (
	errAuthNotConfigured = errors.New("no bearer token configured and request is not from loopback")
	errBadToken          = errors.New("missing or invalid bearer token")
)

// HTTPConfig controls the streamable-HTTP transport's auth behavior
// (spec.md §6's "Auth" clause).
type HTTPConfig struct {
	BearerToken                   string
	AllowLocalhostUnauthenticated bool
}

// Handler mounts the MCP streamable-HTTP transport at "/mcp/" behind an
// auth middleware, matching the teacher's authMiddleware pattern
// (_examples/terraphim-ntm/internal/serve/server.go's isLoopbackHost +
// bearer-token check) generalized from the teacher's several auth modes
// down to this server's single bearer-or-loopback policy.
func Handler(mcpSrv *Server, cfg HTTPConfig) http.Handler {
	streamable := server.NewStreamableHTTPServer(mcpSrv.MCPServer(), server.WithEndpointPath("/mcp/"))

	mux := http.NewServeMux()
	mux.Handle("/mcp/", streamable)
	return authMiddleware(cfg, mux)
}

func authMiddleware(cfg HTTPConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := authenticate(cfg, r); err != nil {
			slog.Warn("mcp auth failed", "remote", r.RemoteAddr, "path", r.URL.Path, "error", err)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authenticate(cfg HTTPConfig, r *http.Request) error {
	if cfg.AllowLocalhostUnauthenticated && isLoopbackHost(remoteHost(r)) {
		return nil
	}
	if cfg.BearerToken == "" {
		return errAuthNotConfigured
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != cfg.BearerToken {
		return errBadToken
	}
	return nil
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopbackHost mirrors the teacher's isLoopbackHost (serve/server.go):
// bare hostnames are loopback only as "localhost"; IPs are checked via
// net.IP.IsLoopback.
func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(host)
	if h == "" {
		return true
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
