package mcpserver

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentfleet/agentmaild/internal/index"
)

// textResource marshals v as one JSON text resource content block.
func textResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(b)},
	}, nil
}

// trimmedSegments splits a resource:// URI's path into its non-empty
// segments, e.g. "resource://inbox/demo/Alpha" -> ["demo", "Alpha"].
func trimmedSegments(uri, prefix string) []string {
	rest := strings.TrimPrefix(uri, prefix)
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	var out []string
	for _, seg := range strings.Split(rest, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func queryParams(uri string) url.Values {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		v, _ := url.ParseQuery(uri[i+1:])
		return v
	}
	return url.Values{}
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource("resource://projects", "Projects",
			mcp.WithResourceDescription("Every project known to this server."),
			mcp.WithMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			projects, err := s.eng.ListProjects(ctx)
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, projects)
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://project/{key}", "Project",
			mcp.WithTemplateDescription("A single project, identified by its human key or slug."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://project/")
			if len(segs) == 0 {
				return nil, errInvalidURI(req.Params.URI)
			}
			proj, err := s.eng.EnsureProject(ctx, segs[0], time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, proj)
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://agents/{key}", "Project Agents",
			mcp.WithTemplateDescription("All agents registered in a project."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://agents/")
			if len(segs) == 0 {
				return nil, errInvalidURI(req.Params.URI)
			}
			agents, err := s.eng.ListAgents(ctx, segs[0], false, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, agents)
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://inbox/{key}/{agent}", "Agent Inbox",
			mcp.WithTemplateDescription("An agent's inbox, newest first."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://inbox/")
			if len(segs) < 2 {
				return nil, errInvalidURI(req.Params.URI)
			}
			msgs, err := s.eng.FetchInbox(ctx, segs[0], segs[1], index.InboxOptions{Limit: 50}, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, s.renderMessages(ctx, segs[0], msgs))
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://outbox/{key}/{agent}", "Agent Outbox",
			mcp.WithTemplateDescription("An agent's outbox, newest first."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://outbox/")
			if len(segs) < 2 {
				return nil, errInvalidURI(req.Params.URI)
			}
			msgs, err := s.eng.FetchOutbox(ctx, segs[0], segs[1], index.InboxOptions{Limit: 50}, time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, s.renderMessages(ctx, segs[0], msgs))
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://message/{id}", "Message",
			mcp.WithTemplateDescription("A single message by id. Requires ?project= to resolve it."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://message/")
			if len(segs) == 0 {
				return nil, errInvalidURI(req.Params.URI)
			}
			projectKey := queryParams(req.Params.URI).Get("project")
			msg, err := s.eng.GetMessage(ctx, projectKey, segs[0])
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, s.renderMessage(ctx, projectKey, msg))
		},
	)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate("resource://claims/{key}", "Project Claims",
			mcp.WithTemplateDescription("Active file-path claims in a project. The active_only query parameter is not read; released and expired claims are not returned."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			segs := trimmedSegments(req.Params.URI, "resource://claims/")
			if len(segs) == 0 {
				return nil, errInvalidURI(req.Params.URI)
			}
			claims, err := s.eng.ActiveClaims(ctx, segs[0], time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return textResource(req.Params.URI, claims)
		},
	)
}
