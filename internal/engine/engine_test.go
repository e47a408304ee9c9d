package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/mailbox"
	"github.com/agentfleet/agentmaild/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := index.Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(t.TempDir(), store, nil, "")
}

func TestEnsureProjectIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p1, err := e.EnsureProject(ctx, "/repos/demo", now)
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	p2, err := e.EnsureProject(ctx, "/repos/demo", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("EnsureProject (2nd): %v", err)
	}
	if p1.ID != p2.ID || p1.Slug != p2.Slug {
		t.Fatalf("expected ensure_project to be idempotent, got %+v then %+v", p1, p2)
	}
}

func TestRegisterAgentWritesProfileAndCommits(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	res, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Scout", "index the repo", now)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if !res.Created || res.Agent.Name == "" {
		t.Fatalf("expected a freshly created named agent, got %+v", res)
	}

	who, err := e.Whois(ctx, "/repos/demo", res.Agent.Name)
	if err != nil {
		t.Fatalf("Whois: %v", err)
	}
	if who.Program != "claude-code" {
		t.Fatalf("unexpected agent: %+v", who)
	}
}

// TestEndToEndSendReplySummarize exercises spec.md §8's literal scenario:
// register two agents, send, reply, and confirm summarize_thread reports
// the right participant/message counts.
func TestEndToEndSendReplySummarize(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alpha, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	beta, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Beta", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Beta: %v", err)
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/demo", beta.Agent.Name, model.ContactPolicy("bogus"), now); err == nil {
		t.Fatalf("expected invalid contact policy rejection")
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/demo", beta.Agent.Name, model.PolicyOpen, now); err != nil {
		t.Fatalf("set Beta to open: %v", err)
	}

	sent, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: alpha.Agent.Name, To: []string{beta.Agent.Name}, Subject: "status", BodyMD: "progress update\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := e.Reply(ctx, "/repos/demo", mailbox.ReplyParams{
		MessageID: sent.ID, From: beta.Agent.Name, BodyMD: "Ack\n",
	}, now.Add(time.Minute)); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	summary, _, err := e.SummarizeThread(ctx, "/repos/demo", sent.ID, false)
	if err != nil {
		t.Fatalf("SummarizeThread: %v", err)
	}
	if summary.TotalMsgs != 2 {
		t.Fatalf("expected 2 total messages, got %d", summary.TotalMsgs)
	}
	if len(summary.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", summary.Participants)
	}
}

func TestMessageHookFiresOnSendAndReplyOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alpha, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	beta, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Beta", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Beta: %v", err)
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/demo", beta.Agent.Name, model.PolicyOpen, now); err != nil {
		t.Fatalf("set Beta to open: %v", err)
	}

	var mu sync.Mutex
	var fired []string
	e.SetMessageHook(func(humanKey string, res mailbox.SendResult) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, humanKey+":"+res.ID)
	})

	if _, err := e.SetContactPolicy(ctx, "/repos/demo", beta.Agent.Name, model.PolicyOpen, now); err != nil {
		t.Fatalf("set Beta to open (again): %v", err)
	}
	mu.Lock()
	if len(fired) != 0 {
		t.Fatalf("expected the hook to stay silent for non-message operations, got %v", fired)
	}
	mu.Unlock()

	sent, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: alpha.Agent.Name, To: []string{beta.Agent.Name}, Subject: "status", BodyMD: "progress update\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := e.Reply(ctx, "/repos/demo", mailbox.ReplyParams{
		MessageID: sent.ID, From: beta.Agent.Name, BodyMD: "Ack\n",
	}, now.Add(time.Minute)); err != nil {
		t.Fatalf("Reply: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 2 {
		t.Fatalf("expected the hook to fire once per Send/Reply, got %v", fired)
	}
	if fired[0] != "/repos/demo:"+sent.ID {
		t.Errorf("expected Send's hook call to carry the human key and message ID, got %q", fired[0])
	}
}

func TestReserveConflictAndRelease(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	b, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Beta", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Beta: %v", err)
	}

	res1, err := e.Reserve(ctx, "/repos/demo", a.Agent.Name, []string{"src/main.go"}, time.Hour, true, "editing", now)
	if err != nil {
		t.Fatalf("Reserve Alpha: %v", err)
	}
	if len(res1.Granted) != 1 {
		t.Fatalf("expected Alpha's reservation granted, got %+v", res1)
	}

	res2, err := e.Reserve(ctx, "/repos/demo", b.Agent.Name, []string{"src/main.go"}, time.Hour, true, "editing", now)
	if err != nil {
		t.Fatalf("Reserve Beta: %v", err)
	}
	if len(res2.Conflicts) != 1 {
		t.Fatalf("expected Beta's reservation to conflict, got %+v", res2)
	}

	if _, err := e.Release(ctx, "/repos/demo", a.Agent.Name, nil, now); err != nil {
		t.Fatalf("Release Alpha: %v", err)
	}

	res3, err := e.Reserve(ctx, "/repos/demo", b.Agent.Name, []string{"src/main.go"}, time.Hour, true, "editing", now)
	if err != nil {
		t.Fatalf("Reserve Beta after release: %v", err)
	}
	if len(res3.Granted) != 1 {
		t.Fatalf("expected Beta's reservation granted after Alpha released, got %+v", res3)
	}
}

func TestRequestContactThenDecideUnblocksContactsOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	b, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Beta", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Beta: %v", err)
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/demo", b.Agent.Name, model.PolicyContactsOnly, now); err != nil {
		t.Fatalf("set Beta to contacts_only: %v", err)
	}

	if _, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: a.Agent.Name, To: []string{b.Agent.Name}, Subject: "hi", BodyMD: "hi\n",
	}, now); err == nil {
		t.Fatalf("expected send to be blocked before contact is accepted")
	}

	req, err := e.RequestContact(ctx, "/repos/demo", a.Agent.Name, b.Agent.Name, "need to coordinate", now)
	if err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	if err := e.DecideContactRequest(ctx, "/repos/demo", req.ID, model.ContactAccepted, now); err != nil {
		t.Fatalf("DecideContactRequest: %v", err)
	}

	if _, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: a.Agent.Name, To: []string{b.Agent.Name}, Subject: "hi", BodyMD: "hi\n",
	}, now); err != nil {
		t.Fatalf("expected send to succeed after contact accepted, got: %v", err)
	}
}

// TestCrossProjectSendDeliversAfterLinkAcceptedAndReplyRoutesBack exercises
// spec.md §4.7's cross-project path end to end: a send before any link is
// rejected with LINK_REQUIRED and auto-creates a pending AgentLink; once
// both directions are accepted, the send delivers a mirrored copy into the
// recipient's own project, and replying to that copy routes back across
// the same link without the replier naming a project explicitly.
func TestCrossProjectSendDeliversAfterLinkAcceptedAndReplyRoutesBack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alpha, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	bob, err := e.RegisterAgent(ctx, "/repos/other", "claude-code", "opus", "Bob", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Bob: %v", err)
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/other", bob.Agent.Name, model.PolicyOpen, now); err != nil {
		t.Fatalf("set Bob to open: %v", err)
	}

	_, err = e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: alpha.Agent.Name,
		CrossProjectTo: []mailbox.RemoteRecipient{{ProjectKey: "/repos/other", Agent: bob.Agent.Name}},
		Subject:        "status", BodyMD: "progress update\n",
	}, now)
	if model.KindOf(err) != model.ErrLinkRequired {
		t.Fatalf("expected the first cross-project send to be rejected with LINK_REQUIRED before any link exists, got %v", err)
	}

	if _, err := e.RequestLink(ctx, "/repos/demo", alpha.Agent.Name, "/repos/other", bob.Agent.Name, now); err != nil {
		t.Fatalf("RequestLink already auto-created by the rejected send should be a no-op, got error: %v", err)
	}
	if err := e.DecideLink(ctx, "/repos/demo", alpha.Agent.Name, "/repos/other", bob.Agent.Name, model.LinkAccepted, now); err != nil {
		t.Fatalf("DecideLink forward: %v", err)
	}
	if _, err := e.RequestLink(ctx, "/repos/other", bob.Agent.Name, "/repos/demo", alpha.Agent.Name, now); err != nil {
		t.Fatalf("RequestLink backward: %v", err)
	}
	if err := e.DecideLink(ctx, "/repos/other", bob.Agent.Name, "/repos/demo", alpha.Agent.Name, model.LinkAccepted, now); err != nil {
		t.Fatalf("DecideLink backward: %v", err)
	}

	sent, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: alpha.Agent.Name,
		CrossProjectTo: []mailbox.RemoteRecipient{{ProjectKey: "/repos/other", Agent: bob.Agent.Name}},
		Subject:        "status", BodyMD: "progress update\n",
	}, now)
	if err != nil {
		t.Fatalf("Send after accepted link: %v", err)
	}

	bobInbox, err := e.FetchInbox(ctx, "/repos/other", bob.Agent.Name, index.InboxOptions{}, now)
	if err != nil {
		t.Fatalf("FetchInbox Bob: %v", err)
	}
	if len(bobInbox) != 1 {
		t.Fatalf("expected Bob to receive a mirrored copy, got %+v", bobInbox)
	}
	mirrored := bobInbox[0]
	if mirrored.ID == sent.ID {
		t.Fatalf("expected the mirrored message to have its own id, got the sender's id %q", sent.ID)
	}
	if mirrored.FromAgent != "Alpha@/repos/demo" {
		t.Fatalf("expected the mirrored sender to be stamped with its origin project, got %q", mirrored.FromAgent)
	}

	if _, err := e.Reply(ctx, "/repos/other", mailbox.ReplyParams{
		MessageID: mirrored.ID, From: bob.Agent.Name, BodyMD: "got it\n",
	}, now.Add(time.Minute)); err != nil {
		t.Fatalf("Reply to mirrored message: %v", err)
	}

	alphaInbox, err := e.FetchInbox(ctx, "/repos/demo", alpha.Agent.Name, index.InboxOptions{}, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("FetchInbox Alpha: %v", err)
	}
	if len(alphaInbox) != 1 {
		t.Fatalf("expected Bob's reply to route back to Alpha's project, got %+v", alphaInbox)
	}
	if alphaInbox[0].BodyMD != "got it\n" {
		t.Fatalf("unexpected reply body: %+v", alphaInbox[0])
	}
}

// TestCrashRecoveryRebuildsIndexFromArchive simulates spec.md §8's
// scenario 5: the Index is wiped (as if the process died after an archive
// commit but before the index upsert), and the next engine call against
// the same project observes the message again via the recovery pass.
func TestCrashRecoveryRebuildsIndexFromArchive(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Alpha", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Alpha: %v", err)
	}
	b, err := e.RegisterAgent(ctx, "/repos/demo", "claude-code", "opus", "Beta", "", now)
	if err != nil {
		t.Fatalf("RegisterAgent Beta: %v", err)
	}
	if _, err := e.SetContactPolicy(ctx, "/repos/demo", b.Agent.Name, model.PolicyOpen, now); err != nil {
		t.Fatalf("set Beta to open: %v", err)
	}

	sent, err := e.Send(ctx, "/repos/demo", mailbox.SendParams{
		From: a.Agent.Name, To: []string{b.Agent.Name}, Subject: "status", BodyMD: "hi\n",
	}, now)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Simulate the crash: delete the message row directly (as if the
	// process died after the archive commit but before the index upsert),
	// leaving the Archive (the committed files on disk) untouched.
	if _, err := e.store.DB().ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, sent.ID); err != nil {
		t.Fatalf("simulate crash by deleting message row: %v", err)
	}

	h, err := e.ensureProject(ctx, "/repos/demo", now)
	if err != nil {
		t.Fatalf("ensureProject: %v", err)
	}
	h.recoverOnce = sync.Once{} // force the next ensureProject to re-run Rebuild

	msg, err := e.GetMessage(ctx, "/repos/demo", sent.ID)
	if err != nil {
		t.Fatalf("GetMessage after simulated crash: %v", err)
	}
	if msg.BodyMD != "hi\n" {
		t.Fatalf("expected recovery pass to restore message body, got %+v", msg)
	}
}
