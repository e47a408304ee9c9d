package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	dir := t.TempDir()
	a, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return a
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	a1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := a1.WriteFile("agents/Amber-Falcon/profile.json", []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := a1.Commit("agent: create Amber-Falcon"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	a2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if _, err := os.Stat(filepath.Join(a2.Root(), "agents/Amber-Falcon/profile.json")); err != nil {
		t.Fatalf("expected prior commit to survive reopen: %v", err)
	}
}

func TestCommitIsNoOpWhenNothingStaged(t *testing.T) {
	a := newTestArchive(t)
	if err := a.WriteFile("agents/Quiet-Otter/profile.json", []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	head1, err := a.Commit("agent: create Quiet-Otter")
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	head2, err := a.Commit("agent: create Quiet-Otter")
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if head1 != head2 {
		t.Fatalf("expected no-op commit to leave HEAD unchanged, got %s then %s", head1, head2)
	}
}

func TestMessageFrontmatterRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	msg := model.Message{
		ID:          "01J8Z",
		ThreadID:    "thread-1",
		Subject:     "status update",
		FromAgent:   "Amber-Falcon",
		CreatedTS:   created,
		Importance:  model.ImportanceHigh,
		AckRequired: true,
	}
	fm := FrontmatterFromMessage(msg, "my-project-abc1234567", []string{"Quiet-Otter"}, nil, nil)
	content, err := RenderMessageFile(fm, "Body text.\n")
	if err != nil {
		t.Fatalf("RenderMessageFile: %v", err)
	}

	parsedFM, body, err := ParseMessageFile(content)
	if err != nil {
		t.Fatalf("ParseMessageFile: %v", err)
	}
	if parsedFM.ID != msg.ID || parsedFM.Subject != msg.Subject {
		t.Fatalf("round trip mismatch: %+v", parsedFM)
	}
	if body != "Body text.\n" {
		t.Fatalf("unexpected body: %q", body)
	}
	if len(parsedFM.To) != 1 || parsedFM.To[0] != "Quiet-Otter" {
		t.Fatalf("unexpected recipients: %v", parsedFM.To)
	}
}

func TestAppendClaimAllowsMultipleSharedHolders(t *testing.T) {
	a := newTestArchive(t)
	now := time.Now().UTC()
	c1 := model.Claim{ID: "c1", AgentName: "Amber-Falcon", Path: "src/**", Exclusive: false, CreatedTS: now, ExpiresTS: now.Add(time.Hour)}
	c2 := model.Claim{ID: "c2", AgentName: "Quiet-Otter", Path: "src/**", Exclusive: false, CreatedTS: now, ExpiresTS: now.Add(time.Hour)}

	if err := a.AppendClaim(c1); err != nil {
		t.Fatalf("AppendClaim c1: %v", err)
	}
	if err := a.AppendClaim(c2); err != nil {
		t.Fatalf("AppendClaim c2: %v", err)
	}

	cf, err := a.LoadClaimFile("src/**")
	if err != nil {
		t.Fatalf("LoadClaimFile: %v", err)
	}
	if len(cf.Claims) != 2 {
		t.Fatalf("expected 2 claim records for shared path, got %d", len(cf.Claims))
	}
}

func TestMarkClaimReleased(t *testing.T) {
	a := newTestArchive(t)
	now := time.Now().UTC()
	c := model.Claim{ID: "c1", AgentName: "Amber-Falcon", Path: "pkg/foo.go", Exclusive: true, CreatedTS: now, ExpiresTS: now.Add(time.Hour)}
	if err := a.AppendClaim(c); err != nil {
		t.Fatalf("AppendClaim: %v", err)
	}
	if err := a.MarkClaimReleased("pkg/foo.go", "c1", now); err != nil {
		t.Fatalf("MarkClaimReleased: %v", err)
	}
	cf, err := a.LoadClaimFile("pkg/foo.go")
	if err != nil {
		t.Fatalf("LoadClaimFile: %v", err)
	}
	if cf.Claims[0].ReleasedTS == nil {
		t.Fatalf("expected ReleasedTS to be set")
	}
}

func TestMarkClaimReleasedUnknownID(t *testing.T) {
	a := newTestArchive(t)
	if err := a.MarkClaimReleased("pkg/foo.go", "nonexistent", time.Now()); err == nil {
		t.Fatalf("expected error for unknown claim id")
	}
}

func TestWalkAgentProfiles(t *testing.T) {
	a := newTestArchive(t)
	if err := a.WriteFile(AgentProfilePath("Amber-Falcon"), []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := a.WriteFile(AgentProfilePath("Quiet-Otter"), []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	paths, err := a.WalkAgentProfiles()
	if err != nil {
		t.Fatalf("WalkAgentProfiles: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 profiles, got %d: %v", len(paths), paths)
	}
}

func TestWalkOnEmptyArchiveReturnsNoError(t *testing.T) {
	a := newTestArchive(t)
	paths, err := a.WalkCanonicalMessages()
	if err != nil {
		t.Fatalf("WalkCanonicalMessages on empty archive: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no messages, got %v", paths)
	}
}
