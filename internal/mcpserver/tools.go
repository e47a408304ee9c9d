package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

// messageView is the over-the-wire shape of a Message (spec.md §6: "id,
// thread_id, project, from, to, cc, created, importance, ack_required,
// subject"), assembled from model.Message plus its Recipient rows.
type messageView struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	ProjectID   int64    `json:"project_id"`
	From        string   `json:"from"`
	To          []string `json:"to"`
	CC          []string `json:"cc"`
	Subject     string   `json:"subject"`
	BodyMD      string   `json:"body_md"`
	Created     string   `json:"created"`
	Importance  string   `json:"importance"`
	AckRequired bool     `json:"ack_required"`
	Overseer    bool     `json:"overseer"`
}

func (s *Server) renderMessage(ctx context.Context, humanKey string, m model.Message) messageView {
	view := messageView{
		ID: m.ID, ThreadID: m.ThreadID, ProjectID: m.ProjectID, From: m.FromAgent,
		Subject: m.Subject, BodyMD: m.BodyMD, Created: m.CreatedTS.Format(time.RFC3339),
		Importance: string(m.Importance), AckRequired: m.AckRequired, Overseer: m.Overseer,
	}
	recipients, err := s.eng.Recipients(ctx, humanKey, m.ID)
	if err != nil {
		return view
	}
	for _, r := range recipients {
		switch r.Kind {
		case model.KindTo:
			view.To = append(view.To, r.AgentName)
		case model.KindCC:
			view.CC = append(view.CC, r.AgentName)
		}
	}
	return view
}

func (s *Server) renderMessages(ctx context.Context, humanKey string, msgs []model.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, s.renderMessage(ctx, humanKey, m))
	}
	return views
}

func (s *Server) registerTools() {
	s.addTool(mcp.NewTool("ensure_project",
		mcp.WithDescription("Ensure a project exists for the given human-readable key (a path or repo identifier), creating it on first use."),
		mcp.WithString("human_key", mcp.Required(), mcp.Description("Human-readable project identifier, e.g. an absolute repo path.")),
	), s.handleEnsureProject)

	s.addTool(mcp.NewTool("register_agent",
		mcp.WithDescription("Register (or re-register) an agent identity within a project."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("program", mcp.Required(), mcp.Description("The coding agent program, e.g. claude-code.")),
		mcp.WithString("model", mcp.Description("Model name/alias the agent is running as.")),
		mcp.WithString("name", mcp.Description("Preferred display name; a name is generated if omitted or taken.")),
		mcp.WithString("task_description", mcp.Description("Short description of what this agent is working on.")),
	), s.handleRegisterAgent)

	s.addTool(mcp.NewTool("whois",
		mcp.WithDescription("Look up an agent's registered identity."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
	), s.handleWhois)

	s.addTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List agents registered in a project."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithBoolean("active_only", mcp.Description("Only include agents active recently.")),
	), s.handleListAgents)

	s.addTool(mcp.NewTool("set_contact_policy",
		mcp.WithDescription("Set an agent's contact policy: open, auto, contacts_only, or block_all."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithString("policy", mcp.Required(), mcp.Enum("open", "auto", "contacts_only", "block_all")),
	), s.handleSetContactPolicy)

	s.addTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message from one registered agent to one or more others. to/cc/bcc address agents in the same project; cross_project_to addresses agents in other projects and requires an accepted link from request_link/respond_link, or the send fails with LINK_REQUIRED."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("sender_name", mcp.Required()),
		mcp.WithArray("to", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("cc", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("bcc", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("cross_project_to", mcp.Description("Recipients in other projects: [{project_key, agent}, ...]."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_key": map[string]any{"type": "string"},
					"agent":       map[string]any{"type": "string"},
				},
				"required": []string{"project_key", "agent"},
			})),
		mcp.WithString("subject", mcp.Required()),
		mcp.WithString("body_md", mcp.Required()),
		mcp.WithString("importance", mcp.Enum("low", "normal", "high", "urgent")),
		mcp.WithBoolean("ack_required"),
		mcp.WithString("thread_id"),
	), s.handleSendMessage)

	s.addTool(mcp.NewTool("reply_message",
		mcp.WithDescription("Reply to an existing message, inheriting its thread and recipients minus the replier. Replying to a message mirrored in from another project routes back across that project's accepted link automatically."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("message_id", mcp.Required()),
		mcp.WithString("sender_name", mcp.Required()),
		mcp.WithString("body_md", mcp.Required()),
		mcp.WithString("subject", mcp.Description("Override the default \"Re: \" subject.")),
		mcp.WithArray("cc", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("bcc", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("importance", mcp.Enum("low", "normal", "high", "urgent")),
		mcp.WithBoolean("ack_required"),
	), s.handleReplyMessage)

	s.addTool(mcp.NewTool("overseer_send_message",
		mcp.WithDescription("Send a message as the human overseer, bypassing contact policy entirely. Callers MUST render these distinctly from agent-to-agent mail."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithArray("to", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("cc", mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("subject", mcp.Required()),
		mcp.WithString("body_md", mcp.Required()),
		mcp.WithString("importance", mcp.Enum("low", "normal", "high", "urgent")),
		mcp.WithBoolean("ack_required"),
		mcp.WithString("thread_id"),
	), s.handleOverseerSendMessage)

	fetchDesc := func(box string) string {
		return "Fetch the " + box + " for an agent, newest first."
	}
	s.addTool(mcp.NewTool("fetch_inbox",
		mcp.WithDescription(fetchDesc("inbox")),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithString("since_ts", mcp.Description("RFC3339 timestamp; only messages after this are returned.")),
		mcp.WithBoolean("urgent_only"),
		mcp.WithNumber("limit"),
	), s.handleFetchInbox)

	// check_my_messages is an alias for fetch_inbox (DESIGN.md's Open
	// Question decision), registered under both names sharing one handler.
	s.addTool(mcp.NewTool("check_my_messages",
		mcp.WithDescription(fetchDesc("inbox")+" Alias of fetch_inbox."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithString("since_ts"),
		mcp.WithBoolean("urgent_only"),
		mcp.WithNumber("limit"),
	), s.handleFetchInbox)

	s.addTool(mcp.NewTool("fetch_outbox",
		mcp.WithDescription(fetchDesc("outbox")),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithString("since_ts"),
		mcp.WithBoolean("urgent_only"),
		mcp.WithNumber("limit"),
	), s.handleFetchOutbox)

	s.addTool(mcp.NewTool("get_message",
		mcp.WithDescription("Fetch a single message by id."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("message_id", mcp.Required()),
	), s.handleGetMessage)

	s.addTool(mcp.NewTool("mark_read",
		mcp.WithDescription("Mark a message as read by a recipient."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("message_id", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
	), s.handleMarkRead)

	s.addTool(mcp.NewTool("acknowledge_message",
		mcp.WithDescription("Acknowledge a message that required acknowledgement."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("message_id", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
	), s.handleAcknowledgeMessage)

	s.addTool(mcp.NewTool("search_messages",
		mcp.WithDescription("Full-text search messages in a project."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("limit"),
	), s.handleSearchMessages)

	s.addTool(mcp.NewTool("summarize_thread",
		mcp.WithDescription("Summarize a thread's participants, key points, and action items."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("thread_id", mcp.Required()),
		mcp.WithBoolean("include_examples", mcp.Description("Include the underlying messages in the result.")),
	), s.handleSummarizeThread)

	s.addTool(mcp.NewTool("reserve_file_paths",
		mcp.WithDescription("Reserve one or more file paths (supporting ** globs) against conflicting concurrent edits."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithArray("paths", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("ttl_seconds", mcp.Description("Reservation lifetime; defaults to 3600.")),
		mcp.WithBoolean("exclusive", mcp.Description("If true, conflicts with any other agent's overlapping claim.")),
		mcp.WithString("reason"),
	), s.handleReservePaths)
	// reserve_paths is an alias used by some clients for reserve_file_paths.
	s.addTool(mcp.NewTool("reserve_paths",
		mcp.WithDescription("Alias of reserve_file_paths."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithArray("paths", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("ttl_seconds"),
		mcp.WithBoolean("exclusive"),
		mcp.WithString("reason"),
	), s.handleReservePaths)

	s.addTool(mcp.NewTool("renew_file_reservations",
		mcp.WithDescription("Extend the expiry of an agent's active claims."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithNumber("extend_seconds", mcp.Required()),
		mcp.WithArray("paths", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Restrict renewal to these paths; all active claims if omitted.")),
	), s.handleRenewReservations)
	s.addTool(mcp.NewTool("renew_lease",
		mcp.WithDescription("Alias of renew_file_reservations."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithNumber("extend_seconds", mcp.Required()),
		mcp.WithArray("paths", mcp.Items(map[string]any{"type": "string"})),
	), s.handleRenewReservations)

	s.addTool(mcp.NewTool("release_file_reservations",
		mcp.WithDescription("Release an agent's active claims."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithArray("paths", mcp.Items(map[string]any{"type": "string"}), mcp.Description("Restrict release to these paths; all active claims if omitted.")),
	), s.handleReleaseReservations)
	s.addTool(mcp.NewTool("release_paths",
		mcp.WithDescription("Alias of release_file_reservations."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("agent_name", mcp.Required()),
		mcp.WithArray("paths", mcp.Items(map[string]any{"type": "string"})),
	), s.handleReleaseReservations)

	s.addTool(mcp.NewTool("force_release_reservation",
		mcp.WithDescription("Force-release a single claim regardless of owner, for the case an agent crashed holding it. Any agent may call this, naming itself in released_by; no reason is recorded. Logged distinctly from a normal release."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("claim_id", mcp.Required()),
		mcp.WithString("path", mcp.Required()),
		mcp.WithString("released_by", mcp.Required()),
	), s.handleForceRelease)

	s.addTool(mcp.NewTool("request_contact",
		mcp.WithDescription("Ask an agent under contacts_only for permission to message them."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("from_agent", mcp.Required()),
		mcp.WithString("to_agent", mcp.Required()),
		mcp.WithString("reason"),
	), s.handleRequestContact)

	s.addTool(mcp.NewTool("respond_contact",
		mcp.WithDescription("Accept or deny a pending contact request."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithNumber("request_id", mcp.Required()),
		mcp.WithString("decision", mcp.Required(), mcp.Enum("accepted", "denied")),
	), s.handleRespondContact)

	s.addTool(mcp.NewTool("request_link",
		mcp.WithDescription("Request a cross-project link so an agent in another project may receive messages."),
		mcp.WithString("from_project_key", mcp.Required()),
		mcp.WithString("from_agent", mcp.Required()),
		mcp.WithString("to_project_key", mcp.Required()),
		mcp.WithString("to_agent", mcp.Required()),
	), s.handleRequestLink)

	s.addTool(mcp.NewTool("respond_link",
		mcp.WithDescription("Accept or block one direction of a cross-project link; both directions must be accepted before cross-project sends are allowed."),
		mcp.WithString("from_project_key", mcp.Required()),
		mcp.WithString("from_agent", mcp.Required()),
		mcp.WithString("to_project_key", mcp.Required()),
		mcp.WithString("to_agent", mcp.Required()),
		mcp.WithString("decision", mcp.Required(), mcp.Enum("accepted", "blocked")),
	), s.handleRespondLink)

	s.addTool(mcp.NewTool("macro_start_session",
		mcp.WithDescription("Compose ensure_project + register_agent (+ optional reserve + fetch_inbox) into one call."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("program", mcp.Required()),
		mcp.WithString("model"),
		mcp.WithString("name"),
		mcp.WithString("task_description"),
		mcp.WithArray("reserve_paths", mcp.Items(map[string]any{"type": "string"}), mcp.Description("If given, also reserve these paths for the new agent.")),
	), s.handleMacroStartSession)

	s.addTool(mcp.NewTool("macro_prepare_thread",
		mcp.WithDescription("Compose register_agent + summarize_thread + fetch_inbox into one call."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("program", mcp.Required()),
		mcp.WithString("model"),
		mcp.WithString("name"),
		mcp.WithString("task_description"),
		mcp.WithString("thread_id", mcp.Required()),
	), s.handleMacroPrepareThread)

	s.addTool(mcp.NewTool("macro_contact_handshake",
		mcp.WithDescription("Compose request_contact + (optionally) respond_contact into one call, for overseer-driven setup of a contacts_only pair."),
		mcp.WithString("project_key", mcp.Required()),
		mcp.WithString("from_agent", mcp.Required()),
		mcp.WithString("to_agent", mcp.Required()),
		mcp.WithString("reason"),
		mcp.WithBoolean("auto_accept", mcp.Description("If true, immediately accepts the request it creates.")),
	), s.handleMacroContactHandshake)
}

// addTool registers a tool with its handler; a thin wrapper so the
// registration block above reads as a flat list.
func (s *Server) addTool(tool mcp.Tool, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) {
	s.mcp.AddTool(tool, handler)
}

func (s *Server) handleEnsureProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	proj, err := s.eng.EnsureProject(ctx, argString(a, "human_key", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(proj)
}

func (s *Server) handleRegisterAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	res, err := s.eng.RegisterAgent(ctx,
		argString(a, "project_key", ""), argString(a, "program", ""), argString(a, "model", ""),
		argString(a, "name", ""), argString(a, "task_description", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleWhois(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	agent, err := s.eng.Whois(ctx, argString(a, "project_key", ""), argString(a, "agent_name", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(agent)
}

func (s *Server) handleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	agents, err := s.eng.ListAgents(ctx, argString(a, "project_key", ""), argBool(a, "active_only", false), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(agents)
}

func (s *Server) handleSetContactPolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	agent, err := s.eng.SetContactPolicy(ctx, argString(a, "project_key", ""), argString(a, "agent_name", ""),
		model.ContactPolicy(argString(a, "policy", "")), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(agent)
}

func (s *Server) handleSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	res, err := s.eng.Send(ctx, projectKey, mailbox.SendParams{
		From: argString(a, "sender_name", ""), To: argStrings(a, "to"), CC: argStrings(a, "cc"), BCC: argStrings(a, "bcc"),
		CrossProjectTo: argCrossProjectRecipients(a, "cross_project_to"),
		Subject:        argString(a, "subject", ""), BodyMD: argString(a, "body_md", ""),
		Importance: model.Importance(argString(a, "importance", string(model.ImportanceNormal))),
		AckRequired: argBool(a, "ack_required", false), ThreadID: argString(a, "thread_id", ""),
	}, time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleReplyMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	var ackRequired *bool
	if _, ok := a["ack_required"]; ok {
		v := argBool(a, "ack_required", false)
		ackRequired = &v
	}
	res, err := s.eng.Reply(ctx, projectKey, mailbox.ReplyParams{
		MessageID: argString(a, "message_id", ""), From: argString(a, "sender_name", ""),
		BodyMD: argString(a, "body_md", ""), Subject: argString(a, "subject", ""),
		CC: argStrings(a, "cc"), BCC: argStrings(a, "bcc"), AckRequired: ackRequired,
	}, time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleOverseerSendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	res, err := s.eng.Send(ctx, projectKey, mailbox.SendParams{
		From: model.OverseerSender, To: argStrings(a, "to"), CC: argStrings(a, "cc"),
		Subject: argString(a, "subject", ""), BodyMD: argString(a, "body_md", ""),
		Importance: model.Importance(argString(a, "importance", string(model.ImportanceNormal))),
		AckRequired: argBool(a, "ack_required", false), ThreadID: argString(a, "thread_id", ""),
		Overseer: true,
	}, time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func inboxOptionsFromArgs(a map[string]any) index.InboxOptions {
	return index.InboxOptions{
		SinceTS:    parseTimePtr(argString(a, "since_ts", "")),
		UrgentOnly: argBool(a, "urgent_only", false),
		Limit:      argInt(a, "limit", 50),
	}
}

func (s *Server) handleFetchInbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	msgs, err := s.eng.FetchInbox(ctx, projectKey, argString(a, "agent_name", ""), inboxOptionsFromArgs(a), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(s.renderMessages(ctx, projectKey, msgs))
}

func (s *Server) handleFetchOutbox(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	msgs, err := s.eng.FetchOutbox(ctx, projectKey, argString(a, "agent_name", ""), inboxOptionsFromArgs(a), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(s.renderMessages(ctx, projectKey, msgs))
}

func (s *Server) handleGetMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	msg, err := s.eng.GetMessage(ctx, projectKey, argString(a, "message_id", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(s.renderMessage(ctx, projectKey, msg))
}

func (s *Server) handleMarkRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	if err := s.eng.MarkRead(ctx, argString(a, "project_key", ""), argString(a, "message_id", ""), argString(a, "agent_name", ""), time.Now().UTC()); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]bool{"updated": true})
}

func (s *Server) handleAcknowledgeMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	now := time.Now().UTC()
	if err := s.eng.AcknowledgeMessage(ctx, argString(a, "project_key", ""), argString(a, "message_id", ""), argString(a, "agent_name", ""), now); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"acknowledged_at": now.Format(time.RFC3339), "updated": true})
}

func (s *Server) handleSearchMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	msgs, err := s.eng.SearchMessages(ctx, projectKey, argString(a, "query", ""), argInt(a, "limit", 20))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(s.renderMessages(ctx, projectKey, msgs))
}

func (s *Server) handleSummarizeThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	projectKey := argString(a, "project_key", "")
	includeExamples := argBool(a, "include_examples", false)
	summary, examples, err := s.eng.SummarizeThread(ctx, projectKey, argString(a, "thread_id", ""), includeExamples)
	if err != nil {
		return toolError(err)
	}
	out := map[string]any{"summary": summary}
	if includeExamples {
		out["examples"] = s.renderMessages(ctx, projectKey, examples)
	}
	return jsonResult(out)
}

func (s *Server) handleReservePaths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	ttl := time.Duration(argNumber(a, "ttl_seconds", 3600)) * time.Second
	res, err := s.eng.Reserve(ctx, argString(a, "project_key", ""), argString(a, "agent_name", ""),
		argStrings(a, "paths"), ttl, argBool(a, "exclusive", true), argString(a, "reason", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleRenewReservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	extend := time.Duration(argNumber(a, "extend_seconds", 0)) * time.Second
	res, err := s.eng.Renew(ctx, argString(a, "project_key", ""), argString(a, "agent_name", ""), extend, argStrings(a, "paths"), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleReleaseReservations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	res, err := s.eng.Release(ctx, argString(a, "project_key", ""), argString(a, "agent_name", ""), argStrings(a, "paths"), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleForceRelease(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	err := s.eng.ForceRelease(ctx, argString(a, "project_key", ""), argString(a, "claim_id", ""),
		argString(a, "path", ""), argString(a, "released_by", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]string{"status": "released"})
}

func (s *Server) handleRequestContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	res, err := s.eng.RequestContact(ctx, argString(a, "project_key", ""), argString(a, "from_agent", ""), argString(a, "to_agent", ""), argString(a, "reason", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleRespondContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	id := int64(argNumber(a, "request_id", 0))
	if err := s.eng.DecideContactRequest(ctx, argString(a, "project_key", ""), id, model.ContactState(argString(a, "decision", "")), time.Now().UTC()); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]bool{"updated": true})
}

func (s *Server) handleRequestLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	res, err := s.eng.RequestLink(ctx, argString(a, "from_project_key", ""), argString(a, "from_agent", ""),
		argString(a, "to_project_key", ""), argString(a, "to_agent", ""), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) handleRespondLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	err := s.eng.DecideLink(ctx, argString(a, "from_project_key", ""), argString(a, "from_agent", ""),
		argString(a, "to_project_key", ""), argString(a, "to_agent", ""), model.LinkState(argString(a, "decision", "")), time.Now().UTC())
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]bool{"updated": true})
}

func (s *Server) handleMacroStartSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	now := time.Now().UTC()
	projectKey := argString(a, "project_key", "")

	proj, err := s.eng.EnsureProject(ctx, projectKey, now)
	if err != nil {
		return toolError(err)
	}
	agent, err := s.eng.RegisterAgent(ctx, projectKey, argString(a, "program", ""), argString(a, "model", ""),
		argString(a, "name", ""), argString(a, "task_description", ""), now)
	if err != nil {
		return toolError(err)
	}

	out := map[string]any{"project": proj, "agent": agent}
	if paths := argStrings(a, "reserve_paths"); len(paths) > 0 {
		res, err := s.eng.Reserve(ctx, projectKey, agent.Agent.Name, paths, 0, true, "session start", now)
		if err != nil {
			return toolError(err)
		}
		out["reservation"] = res
	}
	inbox, err := s.eng.FetchInbox(ctx, projectKey, agent.Agent.Name, index.InboxOptions{Limit: 50}, now)
	if err != nil {
		return toolError(err)
	}
	out["inbox"] = s.renderMessages(ctx, projectKey, inbox)
	return jsonResult(out)
}

func (s *Server) handleMacroPrepareThread(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	now := time.Now().UTC()
	projectKey := argString(a, "project_key", "")

	agent, err := s.eng.RegisterAgent(ctx, projectKey, argString(a, "program", ""), argString(a, "model", ""),
		argString(a, "name", ""), argString(a, "task_description", ""), now)
	if err != nil {
		return toolError(err)
	}
	threadID := argString(a, "thread_id", "")
	summary, _, err := s.eng.SummarizeThread(ctx, projectKey, threadID, false)
	if err != nil {
		return toolError(err)
	}
	inbox, err := s.eng.FetchInbox(ctx, projectKey, agent.Agent.Name, index.InboxOptions{Limit: 50}, now)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{
		"agent": agent, "summary": summary, "inbox": s.renderMessages(ctx, projectKey, inbox),
	})
}

func (s *Server) handleMacroContactHandshake(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := toolArgs(req)
	now := time.Now().UTC()
	projectKey := argString(a, "project_key", "")

	reqRow, err := s.eng.RequestContact(ctx, projectKey, argString(a, "from_agent", ""), argString(a, "to_agent", ""), argString(a, "reason", ""), now)
	if err != nil {
		return toolError(err)
	}
	out := map[string]any{"request": reqRow}
	if argBool(a, "auto_accept", false) {
		if err := s.eng.DecideContactRequest(ctx, projectKey, reqRow.ID, model.ContactAccepted, now); err != nil {
			return toolError(err)
		}
		out["accepted"] = true
	}
	return jsonResult(out)
}
