// Package mailbox implements send/reply/fetch/search/summarize (spec.md
// §4.5): the operations that move markdown messages between agents.
package mailbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/identity"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
	"github.com/agentfleet/agentmaild/internal/policy"
)

// RemoteRecipient addresses an agent registered in another project, by
// that project's own human_key (spec.md §4.7's cross-project AgentLink).
type RemoteRecipient struct {
	ProjectKey string
	Agent      string
}

func (r RemoteRecipient) display() string {
	return r.Agent + "@" + r.ProjectKey
}

// SendParams is the input to Send/Reply.
type SendParams struct {
	ProjectID      int64
	ProjectSlug    string
	From           string
	To             []string
	CC             []string
	BCC            []string
	CrossProjectTo []RemoteRecipient // recipients in other projects, gated on an accepted AgentLink
	Subject        string
	BodyMD         string
	Importance     model.Importance
	AckRequired    bool
	ThreadID       string // empty means "start a new thread rooted at the new message"
	Overseer       bool   // bypasses policy entirely; tagged distinctly for renderers
	SkipPolicy     bool   // set by Engine when policy.contact_enforcement_enabled is false
}

// SendResult is returned to the RPC caller.
type SendResult struct {
	ID          string
	ThreadID    string
	Created     time.Time
	Subject     string
	BodyMD      string
	Importance  model.Importance
	AckRequired bool
	Recipients  []string
	Remote      []RemoteRecipient // recipients an accepted link cleared; Engine still has to deliver these
}

// Send implements send_message. It validates the sender, evaluates policy
// for every recipient (failing the whole call if any is rejected), then
// writes the canonical message, the sender's outbox copy, and one inbox
// copy per to/cc/bcc recipient, commits once, and upserts the Index.
func Send(ctx context.Context, store *index.Store, arc *archive.Archive, p SendParams, now time.Time) (SendResult, error) {
	if p.Overseer {
		p.From = model.OverseerSender
	} else if _, err := store.GetAgent(ctx, p.ProjectID, p.From); err != nil {
		return SendResult{}, model.NewError(model.ErrAgentNotRegistered, "sender %q is not registered", p.From).WithField("sender_name")
	}

	allRecipients := append(append(append([]string{}, p.To...), p.CC...), p.BCC...)
	if len(allRecipients) == 0 && len(p.CrossProjectTo) == 0 {
		return SendResult{}, model.NewError(model.ErrInvalidArgument, "send_message requires at least one recipient").WithField("to")
	}
	if p.Importance == "" {
		p.Importance = model.ImportanceNormal
	}
	if !p.Importance.Valid() {
		return SendResult{}, model.NewError(model.ErrInvalidArgument, "invalid importance %q", p.Importance).WithField("importance")
	}

	var remote []RemoteRecipient
	if !p.Overseer && !p.SkipPolicy {
		var rejected []string
		kinds := map[model.ErrorKind]bool{}
		for _, name := range allRecipients {
			d, err := policy.EvaluateSend(ctx, store, p.ProjectID, p.From, name, now)
			if err != nil {
				return SendResult{}, err
			}
			if !d.Allowed {
				rejected = append(rejected, name)
				if d.Err != nil {
					kinds[d.Err.Kind] = true
				}
			}
		}
		for _, r := range p.CrossProjectTo {
			d, err := evaluateCrossProjectSend(ctx, store, p.ProjectID, p.From, r, now)
			if err != nil {
				return SendResult{}, err
			}
			if !d.Allowed {
				rejected = append(rejected, r.display())
				if d.Err != nil {
					kinds[d.Err.Kind] = true
				}
				continue
			}
			remote = append(remote, r)
		}
		if len(rejected) > 0 {
			// A single rejection kind (LINK_REQUIRED, CONTACT_PENDING) is
			// reported as is; mixed kinds are reported as POLICY_BLOCKED.
			kind := model.ErrPolicyBlocked
			if len(kinds) == 1 {
				for k := range kinds {
					kind = k
				}
			}
			return SendResult{}, model.NewError(kind, "send rejected for recipients: %s", strings.Join(rejected, ", ")).WithNames(rejected...)
		}
	} else {
		remote = append(remote, p.CrossProjectTo...)
	}

	id := NewMessageID(now)
	threadID := p.ThreadID
	if threadID == "" {
		threadID = id
	}

	msg := model.Message{
		ID: id, ProjectID: p.ProjectID, ThreadID: threadID, Subject: p.Subject, BodyMD: p.BodyMD,
		FromAgent: p.From, CreatedTS: now, Importance: p.Importance, AckRequired: p.AckRequired, Overseer: p.Overseer,
	}

	displayTo := append(append([]string{}, p.To...), remoteDisplayNames(remote)...)
	fm := archive.FrontmatterFromMessage(msg, p.ProjectSlug, displayTo, p.CC, p.BCC)
	content, err := archive.RenderMessageFile(fm, p.BodyMD)
	if err != nil {
		return SendResult{}, fmt.Errorf("render message file: %w", err)
	}

	if err := arc.WriteFile(archive.CanonicalMessagePath(id, now), content); err != nil {
		return SendResult{}, fmt.Errorf("write canonical message: %w", err)
	}
	if err := arc.WriteFile(archive.OutboxMessagePath(p.From, id, now), content); err != nil {
		return SendResult{}, fmt.Errorf("write outbox copy: %w", err)
	}
	for _, name := range dedupe(allRecipients) {
		if err := arc.WriteFile(archive.InboxMessagePath(name, id, now), content); err != nil {
			return SendResult{}, fmt.Errorf("write inbox copy for %s: %w", name, err)
		}
	}

	if _, err := arc.Commit(sendCommitSubject(p.From, displayTo, p.Subject)); err != nil {
		return SendResult{}, fmt.Errorf("commit send: %w", err)
	}

	if err := store.InsertMessage(ctx, msg, p.To, p.CC, p.BCC); err != nil {
		return SendResult{}, model.NewError(model.ErrIndexArchiveMismatch, "archive commit succeeded but index upsert failed: %v", err)
	}

	return SendResult{
		ID: id, ThreadID: threadID, Created: now, Subject: p.Subject, BodyMD: p.BodyMD,
		Importance: p.Importance, AckRequired: p.AckRequired,
		Recipients: dedupe(allRecipients), Remote: remote,
	}, nil
}

// evaluateCrossProjectSend resolves r's project and checks policy.EvaluateLink
// (spec.md §4.7, INV-4): a cross-project recipient must be registered in
// their own project and reachable via an accepted AgentLink.
func evaluateCrossProjectSend(ctx context.Context, store *index.Store, fromProjectID int64, from string, r RemoteRecipient, now time.Time) (policy.Decision, error) {
	toProj, err := identity.EnsureProject(ctx, store, r.ProjectKey, now)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("resolve cross-project recipient %s: %w", r.display(), err)
	}
	if _, err := store.GetAgent(ctx, toProj.ID, r.Agent); err != nil {
		return policy.Decision{}, model.NewError(model.ErrAgentNotRegistered, "recipient %q is not registered", r.display()).WithField("cross_project_to").WithNames(r.display())
	}
	return policy.EvaluateLink(ctx, store, fromProjectID, from, toProj.ID, r.Agent, now)
}

func remoteDisplayNames(remote []RemoteRecipient) []string {
	names := make([]string, 0, len(remote))
	for _, r := range remote {
		names = append(names, r.display())
	}
	return names
}

func sendCommitSubject(from string, to []string, subject string) string {
	return fmt.Sprintf("mail: %s -> %s | %s", from, strings.Join(to, ","), subject)
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
