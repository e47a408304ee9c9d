package webui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/engine"
	"github.com/agentfleet/agentmaild/internal/index"
)

func setupTestServer(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()
	store, err := index.Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	eng := engine.New(t.TempDir(), store, nil, "")
	return New(eng), eng
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want %q", resp["status"], "ok")
	}
}

func TestProjectAndAgentsEndpoints(t *testing.T) {
	h, eng := setupTestServer(t)
	ctx := t.Context()

	if _, err := eng.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", time.Now().UTC()); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/project?project="+url.QueryEscape("/repos/demo"), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get project status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/agents?project="+url.QueryEscape("/repos/demo"), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list agents status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Alpha") {
		t.Errorf("expected agent list to contain Alpha, got %s", rec.Body.String())
	}
}

func TestOverseerSendBypassesPolicy(t *testing.T) {
	h, eng := setupTestServer(t)
	ctx := t.Context()

	if _, err := eng.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", time.Now().UTC()); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	// Alpha defaults to PolicyAuto; an overseer send must still succeed
	// without any prior contact handshake.
	body := strings.NewReader(`{"to":["Alpha"],"subject":"heads up","body_md":"stand by\n"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/overseer-messages?project="+url.QueryEscape("/repos/demo"), body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("overseer send status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRenderMarkdownSanitizesScriptTags(t *testing.T) {
	html := renderMarkdown("hello <script>alert(1)</script>")
	if strings.Contains(html, "<script>") {
		t.Errorf("expected script tag to be stripped, got %q", html)
	}
}
