package mailbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
)

func newTestFixture(t *testing.T) (*index.Store, *archive.Archive, int64) {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	a, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()
	proj, err := s.UpsertProject(ctx, "/p/demo", "demo-abc1234567", now)
	if err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	return s, a, proj.ID
}

func registerAgent(t *testing.T, s *index.Store, projectID int64, name string, policy model.ContactPolicy) {
	t.Helper()
	now := time.Now().UTC()
	a := model.Agent{ProjectID: projectID, Name: name, InceptionTS: now, LastActiveTS: now, ContactPolicy: policy}
	if _, err := s.UpsertAgent(context.Background(), a); err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
}

func TestSendWritesArchiveAndIndex(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)
	registerAgent(t, s, projectID, "Beta", model.PolicyOpen)

	res, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", To: []string{"Beta"}, Subject: "status", BodyMD: "hello\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ID == "" {
		t.Fatalf("expected a generated message id")
	}

	msg, err := s.GetMessage(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.Subject != "status" || msg.FromAgent != "Alpha" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	inbox, err := FetchInbox(ctx, s, projectID, "Beta", index.InboxOptions{}, now)
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != res.ID {
		t.Fatalf("expected Beta's inbox to contain the new message, got %+v", inbox)
	}
}

func TestSendFailsWholeCallWhenAnyRecipientRejected(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)
	registerAgent(t, s, projectID, "Beta", model.PolicyOpen)
	registerAgent(t, s, projectID, "Gamma", model.PolicyBlockAll)

	_, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", To: []string{"Beta", "Gamma"}, Subject: "status", BodyMD: "hello\n",
	}, now)
	if model.KindOf(err) != model.ErrPolicyBlocked {
		t.Fatalf("expected POLICY_BLOCKED, got %v", err)
	}

	inbox, err := FetchInbox(ctx, s, projectID, "Beta", index.InboxOptions{}, now)
	if err != nil {
		t.Fatalf("FetchInbox: %v", err)
	}
	if len(inbox) != 0 {
		t.Fatalf("expected no partial delivery to Beta, got %+v", inbox)
	}
}

func TestReplyInheritsThreadAndPrefixesSubject(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)
	registerAgent(t, s, projectID, "Beta", model.PolicyOpen)

	sent, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", To: []string{"Beta"}, Subject: "status", BodyMD: "hello\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply, err := Reply(ctx, s, a, ReplyParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		MessageID: sent.ID, From: "Beta", BodyMD: "Ack\n",
	}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Subject != "Re: status" {
		t.Fatalf("expected Re: prefix, got %q", reply.Subject)
	}

	msg, err := s.GetMessage(ctx, reply.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.ThreadID != sent.ID {
		t.Fatalf("expected reply to inherit thread id %q, got %q", sent.ID, msg.ThreadID)
	}

	summary, _, err := SummarizeThread(ctx, s, nil, "", projectID, sent.ID, false)
	if err != nil {
		t.Fatalf("SummarizeThread: %v", err)
	}
	if summary.TotalMsgs != 2 {
		t.Fatalf("expected 2 messages in thread, got %d", summary.TotalMsgs)
	}
	if len(summary.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", summary.Participants)
	}
}

func TestAcknowledgeMessageUnknownRecipientErrors(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)
	registerAgent(t, s, projectID, "Beta", model.PolicyOpen)

	sent, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", To: []string{"Beta"}, Subject: "status", BodyMD: "hello\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := AcknowledgeMessage(ctx, s, sent.ID, "Gamma", now); model.KindOf(err) != model.ErrInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for non-recipient ack, got %v", err)
	}
	if err := AcknowledgeMessage(ctx, s, sent.ID, "Beta", now); err != nil {
		t.Fatalf("AcknowledgeMessage: %v", err)
	}
}

func TestSendToCrossProjectRecipientRequiresAcceptedLink(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)

	otherProj, err := s.UpsertProject(ctx, "/p/other", "other-abc1234567", now)
	if err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	registerAgent(t, s, otherProj.ID, "Bob", model.PolicyOpen)

	_, err = Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", CrossProjectTo: []RemoteRecipient{{ProjectKey: "/p/other", Agent: "Bob"}},
		Subject: "status", BodyMD: "hello\n",
	}, now)
	if model.KindOf(err) != model.ErrLinkRequired {
		t.Fatalf("expected LINK_REQUIRED before any link exists, got %v", err)
	}

	link, err := s.GetLink(ctx, projectID, "Alpha", otherProj.ID, "Bob")
	if err != nil {
		t.Fatalf("expected a pending link created as a side effect, got error: %v", err)
	}
	if link.State != model.LinkPending {
		t.Fatalf("expected the auto-created link to be pending, got %q", link.State)
	}

	if err := s.DecideLink(ctx, projectID, "Alpha", otherProj.ID, "Bob", model.LinkAccepted, now); err != nil {
		t.Fatalf("DecideLink forward: %v", err)
	}
	if _, err := s.UpsertLink(ctx, otherProj.ID, "Bob", projectID, "Alpha", now); err != nil {
		t.Fatalf("UpsertLink backward: %v", err)
	}
	if err := s.DecideLink(ctx, otherProj.ID, "Bob", projectID, "Alpha", model.LinkAccepted, now); err != nil {
		t.Fatalf("DecideLink backward: %v", err)
	}

	res, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", CrossProjectTo: []RemoteRecipient{{ProjectKey: "/p/other", Agent: "Bob"}},
		Subject: "status", BodyMD: "hello\n",
	}, now)
	if err != nil {
		t.Fatalf("Send after accepted link: %v", err)
	}
	if len(res.Remote) != 1 || res.Remote[0].Agent != "Bob" || res.Remote[0].ProjectKey != "/p/other" {
		t.Fatalf("expected Bob reported as a cleared remote recipient, got %+v", res.Remote)
	}
}

func TestSearchMessagesFindsSentMessage(t *testing.T) {
	s, a, projectID := newTestFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	registerAgent(t, s, projectID, "Alpha", model.PolicyOpen)
	registerAgent(t, s, projectID, "Beta", model.PolicyOpen)

	if _, err := Send(ctx, s, a, SendParams{
		ProjectID: projectID, ProjectSlug: "demo-abc1234567",
		From: "Alpha", To: []string{"Beta"}, Subject: "deployment rollback", BodyMD: "rolling back prod\n",
	}, now); err != nil {
		t.Fatalf("Send: %v", err)
	}

	results, err := SearchMessages(ctx, s, projectID, "rollback", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 search hit, got %d", len(results))
	}
}
