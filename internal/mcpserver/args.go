package mcpserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

// errInvalidURI reports a resource URI missing the path segment its
// template requires.
func errInvalidURI(uri string) error {
	return fmt.Errorf("malformed resource URI: %q", uri)
}

// toolArgs returns req's arguments as a plain map, tolerating a nil or
// mistyped Arguments field the same way a hand-rolled JSON-RPC layer
// would tolerate malformed input rather than panicking on it.
func toolArgs(req mcp.CallToolRequest) map[string]any {
	if m, ok := req.Params.Arguments.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func argString(a map[string]any, key, def string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argBool(a map[string]any, key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

func argNumber(a map[string]any, key string, def float64) float64 {
	if v, ok := a[key].(float64); ok {
		return v
	}
	return def
}

func argInt(a map[string]any, key string, def int) int {
	return int(argNumber(a, key, float64(def)))
}

func argStrings(a map[string]any, key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// argCrossProjectRecipients parses cross_project_to: [{project_key, agent}, ...]
// into mailbox.RemoteRecipient values, skipping any entry missing a field.
func argCrossProjectRecipients(a map[string]any, key string) []mailbox.RemoteRecipient {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]mailbox.RemoteRecipient, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		projectKey, _ := m["project_key"].(string)
		agent, _ := m["agent"].(string)
		if projectKey == "" || agent == "" {
			continue
		}
		out = append(out, mailbox.RemoteRecipient{ProjectKey: projectKey, Agent: agent})
	}
	return out
}

// jsonResult marshals v as the tool's text content, the convention the
// MCP Go SDK uses for tools whose result is structured data rather than
// prose (there is no separate "structured content" channel in the
// version this server targets).
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError renders an engine error as a CallToolResult carrying the
// stable error kind and message (spec.md §7), rather than a transport
// error, so MCP clients can branch on error_kind programmatically.
func toolError(err error) (*mcp.CallToolResult, error) {
	kind := model.KindOf(err)
	if kind == "" {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, _ := json.Marshal(map[string]string{
		"error_kind": string(kind),
		"message":    err.Error(),
	})
	return mcp.NewToolResultError(string(payload)), nil
}

func parseTimePtr(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
