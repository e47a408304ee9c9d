package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/diag"
	"github.com/agentfleet/agentmaild/internal/identity"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/leases"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

// EnsureProject implements ensure_project. Read-only (no archive write),
// so it takes no project lock.
func (e *Engine) EnsureProject(ctx context.Context, humanKey string, now time.Time) (model.Project, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return model.Project{}, err
	}
	return e.store.GetProjectBySlug(ctx, h.slug)
}

// RegisterAgent implements register_agent. On a freshly created agent it
// also writes the profile.json file and commits "agent: create <name>";
// re-registration updates the Index row, rewrites profile.json to stay in
// lockstep, and commits "agent: update <name>".
func (e *Engine) RegisterAgent(ctx context.Context, humanKey, program, model_, nameHint, task string, now time.Time) (identity.RegisterResult, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return identity.RegisterResult{}, err
	}

	var result identity.RegisterResult
	err = e.withLock(ctx, h, func() error {
		var err error
		result, err = identity.RegisterAgent(ctx, e.store, h.id, program, model_, nameHint, task, now)
		if err != nil {
			return err
		}
		profile := archive.AgentProfile{
			Name: result.Agent.Name, Program: result.Agent.Program, Model: result.Agent.Model,
			TaskDescription: result.Agent.TaskDescription, InceptionTS: result.Agent.InceptionTS,
			LastActiveTS: result.Agent.LastActiveTS, ContactPolicy: string(result.Agent.ContactPolicy),
		}
		content, err := archive.MarshalAgentProfile(profile)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		if err := h.archive.WriteFile(archive.AgentProfilePath(result.Agent.Name), content); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		subject := fmt.Sprintf("agent: update %s", result.Agent.Name)
		if result.Created {
			subject = fmt.Sprintf("agent: create %s", result.Agent.Name)
		}
		if _, err := h.archive.Commit(subject); err != nil {
			return fmt.Errorf("commit profile: %w", err)
		}
		return nil
	})
	return result, err
}

// Whois implements whois. Read-only.
func (e *Engine) Whois(ctx context.Context, humanKey, name string) (model.Agent, error) {
	h, err := e.ensureProject(ctx, humanKey, time.Now().UTC())
	if err != nil {
		return model.Agent{}, err
	}
	return identity.Whois(ctx, e.store, h.id, name)
}

// ListAgents implements list_agents. Read-only.
func (e *Engine) ListAgents(ctx context.Context, humanKey string, activeOnly bool, now time.Time) ([]model.Agent, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return nil, err
	}
	return identity.ListAgents(ctx, e.store, h.id, activeOnly, now)
}

// SetContactPolicy implements set_contact_policy.
func (e *Engine) SetContactPolicy(ctx context.Context, humanKey, name string, p model.ContactPolicy, now time.Time) (model.Agent, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return model.Agent{}, err
	}
	var agent model.Agent
	err = e.withLock(ctx, h, func() error {
		var err error
		agent, err = identity.SetContactPolicy(ctx, e.store, h.id, name, p)
		if err != nil {
			return err
		}
		profile := archive.AgentProfile{
			Name: agent.Name, Program: agent.Program, Model: agent.Model, TaskDescription: agent.TaskDescription,
			InceptionTS: agent.InceptionTS, LastActiveTS: agent.LastActiveTS, ContactPolicy: string(agent.ContactPolicy),
		}
		content, err := archive.MarshalAgentProfile(profile)
		if err != nil {
			return err
		}
		if err := h.archive.WriteFile(archive.AgentProfilePath(agent.Name), content); err != nil {
			return err
		}
		_, err = h.archive.Commit(fmt.Sprintf("agent: set_contact_policy %s -> %s", agent.Name, p))
		return err
	})
	return agent, err
}

// Send implements send_message.
func (e *Engine) Send(ctx context.Context, humanKey string, p mailbox.SendParams, now time.Time) (mailbox.SendResult, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return mailbox.SendResult{}, err
	}
	p.ProjectID = h.id
	p.ProjectSlug = h.slug
	p.SkipPolicy = !e.contactEnforcement

	var res mailbox.SendResult
	err = e.withLock(ctx, h, func() error {
		var sendErr error
		res, sendErr = mailbox.Send(ctx, e.store, h.archive, p, now)
		if model.KindOf(sendErr) == model.ErrIndexArchiveMismatch {
			_ = e.recover(ctx, h)
		}
		return sendErr
	})
	if err == nil {
		e.deliverRemoteRecipients(ctx, humanKey, p.From, res, now)
		e.fireMessageHook(humanKey, res)
	}
	return res, err
}

// deliverRemoteRecipients mirrors a just-sent message into every recipient
// project an accepted AgentLink cleared (res.Remote, set by
// mailbox.Send/Reply's policy.EvaluateLink check). The sender's own send
// has already committed and is the durable record of intent by this
// point, so a delivery failure here is logged rather than failing the
// whole call.
func (e *Engine) deliverRemoteRecipients(ctx context.Context, fromHumanKey, fromAgent string, res mailbox.SendResult, now time.Time) {
	for _, r := range res.Remote {
		if err := e.deliverRemote(ctx, fromHumanKey, fromAgent, res, r, now); err != nil {
			slog.Error("cross-project message delivery failed",
				"from_project", fromHumanKey, "from_agent", fromAgent,
				"to_project", r.ProjectKey, "to_agent", r.Agent,
				"message_id", res.ID, "error", err)
		}
	}
}

// deliverRemote writes a mirrored copy of res into r's project, under that
// project's own lock, with a freshly minted message id (messages.id is a
// single globally-unique key, so the same row cannot span two projects).
// The mirrored FromAgent is stamped "agent@from_project_key" so fetch_inbox
// and reply_message on the far side can tell it apart from a local sender
// and route a reply back across the same link.
func (e *Engine) deliverRemote(ctx context.Context, fromHumanKey, fromAgent string, res mailbox.SendResult, r mailbox.RemoteRecipient, now time.Time) error {
	toH, err := e.ensureProject(ctx, r.ProjectKey, now)
	if err != nil {
		return fmt.Errorf("open recipient project: %w", err)
	}
	return e.withLock(ctx, toH, func() error {
		mirrorID := mailbox.NewMessageID(now)
		msg := model.Message{
			ID:          mirrorID,
			ProjectID:   toH.id,
			ThreadID:    res.ThreadID,
			Subject:     res.Subject,
			BodyMD:      res.BodyMD,
			FromAgent:   fromAgent + "@" + fromHumanKey,
			CreatedTS:   now,
			Importance:  res.Importance,
			AckRequired: res.AckRequired,
		}
		fm := archive.FrontmatterFromMessage(msg, toH.slug, []string{r.Agent}, nil, nil)
		content, err := archive.RenderMessageFile(fm, res.BodyMD)
		if err != nil {
			return fmt.Errorf("render mirrored message file: %w", err)
		}
		if err := toH.archive.WriteFile(archive.CanonicalMessagePath(mirrorID, now), content); err != nil {
			return fmt.Errorf("write mirrored canonical message: %w", err)
		}
		if err := toH.archive.WriteFile(archive.InboxMessagePath(r.Agent, mirrorID, now), content); err != nil {
			return fmt.Errorf("write mirrored inbox copy: %w", err)
		}
		if _, err := toH.archive.Commit(fmt.Sprintf("mail: %s -> %s | %s", msg.FromAgent, r.Agent, res.Subject)); err != nil {
			return fmt.Errorf("commit mirrored delivery: %w", err)
		}
		if err := e.store.InsertMessage(ctx, msg, []string{r.Agent}, nil, nil); err != nil {
			if recoverErr := e.recover(ctx, toH); recoverErr != nil {
				return fmt.Errorf("index upsert failed and recovery failed: %v / %w", recoverErr, err)
			}
			return fmt.Errorf("archive commit succeeded but index upsert failed: %w", err)
		}
		return nil
	})
}

// Reply implements reply_message.
func (e *Engine) Reply(ctx context.Context, humanKey string, p mailbox.ReplyParams, now time.Time) (mailbox.SendResult, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return mailbox.SendResult{}, err
	}
	p.ProjectID = h.id
	p.ProjectSlug = h.slug

	var res mailbox.SendResult
	err = e.withLock(ctx, h, func() error {
		var sendErr error
		res, sendErr = mailbox.Reply(ctx, e.store, h.archive, p, now)
		if model.KindOf(sendErr) == model.ErrIndexArchiveMismatch {
			_ = e.recover(ctx, h)
		}
		return sendErr
	})
	if err == nil {
		e.deliverRemoteRecipients(ctx, humanKey, p.From, res, now)
		e.fireMessageHook(humanKey, res)
	}
	return res, err
}

// FetchInbox implements fetch_inbox. Read-only.
func (e *Engine) FetchInbox(ctx context.Context, humanKey, agentName string, opts index.InboxOptions, now time.Time) ([]model.Message, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return nil, err
	}
	return mailbox.FetchInbox(ctx, e.store, h.id, agentName, opts, now)
}

// FetchOutbox implements fetch_outbox. Read-only.
func (e *Engine) FetchOutbox(ctx context.Context, humanKey, agentName string, opts index.InboxOptions, now time.Time) ([]model.Message, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return nil, err
	}
	return mailbox.FetchOutbox(ctx, e.store, h.id, agentName, opts, now)
}

// GetMessage implements get_message. Read-only.
func (e *Engine) GetMessage(ctx context.Context, humanKey, messageID string) (model.Message, error) {
	h, err := e.ensureProject(ctx, humanKey, time.Now().UTC())
	if err != nil {
		return model.Message{}, err
	}
	return mailbox.GetMessage(ctx, e.store, h.id, messageID)
}

// Recipients implements the to/cc/bcc lookup backing get_message and
// search_messages' JSON rendering. Read-only.
func (e *Engine) Recipients(ctx context.Context, humanKey, messageID string) ([]model.Recipient, error) {
	if _, err := e.ensureProject(ctx, humanKey, time.Now().UTC()); err != nil {
		return nil, err
	}
	return e.store.RecipientsOf(ctx, messageID)
}

// MarkRead implements mark_read.
func (e *Engine) MarkRead(ctx context.Context, humanKey, messageID, agentName string, now time.Time) error {
	_, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return err
	}
	return mailbox.MarkRead(ctx, e.store, messageID, agentName, now)
}

// AcknowledgeMessage implements acknowledge_message. It writes no archive
// change, so it does not take the project lock.
func (e *Engine) AcknowledgeMessage(ctx context.Context, humanKey, messageID, agentName string, now time.Time) error {
	_, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return err
	}
	return mailbox.AcknowledgeMessage(ctx, e.store, messageID, agentName, now)
}

// SearchMessages implements search_messages. Read-only.
func (e *Engine) SearchMessages(ctx context.Context, humanKey, query string, limit int) ([]model.Message, error) {
	h, err := e.ensureProject(ctx, humanKey, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return mailbox.SearchMessages(ctx, e.store, h.id, query, limit)
}

// SummarizeThread implements summarize_thread. Read-only; the LLM call (if
// any) runs outside the project lock.
func (e *Engine) SummarizeThread(ctx context.Context, humanKey, threadID string, includeExamples bool) (model.ThreadSummary, []model.Message, error) {
	h, err := e.ensureProject(ctx, humanKey, time.Now().UTC())
	if err != nil {
		return model.ThreadSummary{}, nil, err
	}
	return mailbox.SummarizeThread(ctx, e.store, e.llm, e.llmModel, h.id, threadID, includeExamples)
}

// Reserve implements reserve_paths.
func (e *Engine) Reserve(ctx context.Context, humanKey, agentName string, paths []string, ttl time.Duration, exclusive bool, reason string, now time.Time) (leases.Result, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return leases.Result{}, err
	}
	var res leases.Result
	err = e.withLock(ctx, h, func() error {
		var err error
		res, err = leases.Reserve(ctx, e.store, h.archive, h.id, agentName, paths, ttl, exclusive, reason, now)
		return err
	})
	return res, err
}

// Renew implements renew_lease.
func (e *Engine) Renew(ctx context.Context, humanKey, agentName string, extend time.Duration, paths []string, now time.Time) (leases.RenewResult, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return leases.RenewResult{}, err
	}
	var res leases.RenewResult
	err = e.withLock(ctx, h, func() error {
		var err error
		res, err = leases.Renew(ctx, e.store, h.archive, h.id, agentName, extend, paths, now)
		return err
	})
	return res, err
}

// Release implements release_paths.
func (e *Engine) Release(ctx context.Context, humanKey, agentName string, paths []string, now time.Time) (leases.ReleaseResult, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return leases.ReleaseResult{}, err
	}
	var res leases.ReleaseResult
	err = e.withLock(ctx, h, func() error {
		var err error
		res, err = leases.Release(ctx, e.store, h.archive, h.id, agentName, paths, now)
		return err
	})
	return res, err
}

// ForceRelease is the supplemented human-overseer escape hatch: release a
// claim by ID regardless of owner.
func (e *Engine) ForceRelease(ctx context.Context, humanKey, claimID, path, releasedBy string, now time.Time) error {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return err
	}
	return e.withLock(ctx, h, func() error {
		return leases.ForceRelease(ctx, e.store, h.archive, claimID, path, releasedBy, now)
	})
}

// GCExpiredClaims implements the gc-expired-claims maintenance operation
// (cmd/agentmaild subcommand): sweeps every known project.
func (e *Engine) GCExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, proj := range projects {
		h, err := e.ensureProject(ctx, proj.HumanKey, now)
		if err != nil {
			return total, err
		}
		var n int
		err = e.withLock(ctx, h, func() error {
			var err error
			n, err = leases.Sweep(ctx, e.store, h.id, now)
			return err
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Reconcile implements the rebuild-index maintenance operation's reporting
// half (cmd/agentmaild subcommand): it runs diag.Reconcile against every
// known project and, when rebuild is true, repairs a dirty project's
// Index from its Archive afterward. The report always reflects the Index
// as it stood before any repair.
func (e *Engine) Reconcile(ctx context.Context, now time.Time, rebuild bool) ([]diag.Report, error) {
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]diag.Report, 0, len(projects))
	for _, proj := range projects {
		h, err := e.ensureProject(ctx, proj.HumanKey, now)
		if err != nil {
			return reports, err
		}
		report, err := diag.Reconcile(ctx, e.store, h.archive, h.id, h.slug, now)
		if err != nil {
			return reports, fmt.Errorf("reconcile %s: %w", h.slug, err)
		}
		reports = append(reports, report)

		if rebuild && !report.Clean {
			if err := e.withLock(ctx, h, func() error {
				return index.Rebuild(ctx, e.store, h.archive, h.id)
			}); err != nil {
				return reports, fmt.Errorf("rebuild %s: %w", h.slug, err)
			}
		}
	}
	return reports, nil
}

// ListProjects implements resource://projects. Read-only.
func (e *Engine) ListProjects(ctx context.Context) ([]model.Project, error) {
	return e.store.ListProjects(ctx)
}

// ActiveClaims implements resource://claims/{key}. Read-only.
func (e *Engine) ActiveClaims(ctx context.Context, humanKey string, now time.Time) ([]model.Claim, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return nil, err
	}
	return e.store.ActiveClaims(ctx, h.id, now)
}

// RequestContact implements request_contact: an agent explicitly asks
// another agent (under contacts_only) for permission to send. It writes
// only the Index's contact_requests table, no archive change, so it
// takes no project lock.
func (e *Engine) RequestContact(ctx context.Context, humanKey, from, to, reason string, now time.Time) (model.ContactRequest, error) {
	h, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return model.ContactRequest{}, err
	}
	if _, err := e.store.GetAgent(ctx, h.id, from); err != nil {
		return model.ContactRequest{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", from).WithField("from").WithNames(from)
	}
	if _, err := e.store.GetAgent(ctx, h.id, to); err != nil {
		return model.ContactRequest{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", to).WithField("to").WithNames(to)
	}
	return e.store.CreateContactRequest(ctx, h.id, from, to, reason, now)
}

// RequestLink implements request_link: an agent asks an agent in another
// project to accept a cross-project link. Writes only the Index, no
// project lock needed.
func (e *Engine) RequestLink(ctx context.Context, fromHumanKey, fromAgent, toHumanKey, toAgent string, now time.Time) (model.AgentLink, error) {
	fromH, err := e.ensureProject(ctx, fromHumanKey, now)
	if err != nil {
		return model.AgentLink{}, err
	}
	toH, err := e.ensureProject(ctx, toHumanKey, now)
	if err != nil {
		return model.AgentLink{}, err
	}
	if _, err := e.store.GetAgent(ctx, fromH.id, fromAgent); err != nil {
		return model.AgentLink{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", fromAgent).WithField("from_agent").WithNames(fromAgent)
	}
	if _, err := e.store.GetAgent(ctx, toH.id, toAgent); err != nil {
		return model.AgentLink{}, model.NewError(model.ErrAgentNotRegistered, "agent %q is not registered", toAgent).WithField("to_agent").WithNames(toAgent)
	}
	return e.store.UpsertLink(ctx, fromH.id, fromAgent, toH.id, toAgent, now)
}

// DecideContactRequest implements the overseer/recipient decision on a
// contacts_only/auto-deferred ContactRequest.
func (e *Engine) DecideContactRequest(ctx context.Context, humanKey string, requestID int64, state model.ContactState, now time.Time) error {
	_, err := e.ensureProject(ctx, humanKey, now)
	if err != nil {
		return err
	}
	return e.store.DecideContactRequest(ctx, requestID, state, now)
}

// DecideLink implements the overseer/recipient decision on a cross-project
// AgentLink.
func (e *Engine) DecideLink(ctx context.Context, fromHumanKey, fromAgent, toHumanKey, toAgent string, state model.LinkState, now time.Time) error {
	fromH, err := e.ensureProject(ctx, fromHumanKey, now)
	if err != nil {
		return err
	}
	toH, err := e.ensureProject(ctx, toHumanKey, now)
	if err != nil {
		return err
	}
	return e.store.DecideLink(ctx, fromH.id, fromAgent, toH.id, toAgent, state, now)
}
