package diag

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/index"
	"github.com/agentfleet/agentmaild/internal/model"
)

func seedArchive(t *testing.T, arc *archive.Archive, now time.Time) {
	t.Helper()

	profile := archive.AgentProfile{Name: "Alpha", Program: "p", Model: "m", InceptionTS: now, LastActiveTS: now, ContactPolicy: "auto"}
	profileBytes, err := archive.MarshalAgentProfile(profile)
	if err != nil {
		t.Fatalf("MarshalAgentProfile: %v", err)
	}
	if err := arc.WriteFile(archive.AgentProfilePath("Alpha"), profileBytes); err != nil {
		t.Fatalf("WriteFile profile: %v", err)
	}

	msg := model.Message{ID: "msg_20260314_deadbeef", ThreadID: "msg_20260314_deadbeef", Subject: "Hi", FromAgent: "Alpha", CreatedTS: now, Importance: model.ImportanceNormal}
	fm := archive.FrontmatterFromMessage(msg, "demo-abc1234567", []string{"Beta"}, nil, nil)
	content, err := archive.RenderMessageFile(fm, "Hello body\n")
	if err != nil {
		t.Fatalf("RenderMessageFile: %v", err)
	}
	if err := arc.WriteFile(archive.CanonicalMessagePath(msg.ID, now), content); err != nil {
		t.Fatalf("WriteFile message: %v", err)
	}

	claim := model.Claim{ID: "c1", AgentName: "Alpha", Path: "src/**", Exclusive: true, CreatedTS: now, ExpiresTS: now.Add(time.Hour)}
	if err := arc.AppendClaim(claim); err != nil {
		t.Fatalf("AppendClaim: %v", err)
	}

	if _, err := arc.Commit("test: seed archive"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestReconcileIsCleanAfterRebuild(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	arc, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	seedArchive(t, arc, now)

	store, err := index.Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	defer store.Close()

	proj, err := store.UpsertProject(ctx, "/p/demo", "demo-abc1234567", now)
	if err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	if err := index.Rebuild(ctx, store, arc, proj.ID); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	report, err := Reconcile(ctx, store, arc, proj.ID, proj.Slug, now)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Clean {
		t.Fatalf("expected a clean report after rebuild, got diff:\n%s", report.UnifiedDiff)
	}
	if report.Similarity != 1.0 {
		t.Errorf("expected similarity 1.0, got %v", report.Similarity)
	}
}

func TestReconcileFlagsDriftBeforeRebuild(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	arc, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	seedArchive(t, arc, now)

	store, err := index.Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	defer store.Close()

	// An Index with no rows yet for a project whose Archive already has
	// committed records (the crash-before-rebuild scenario spec.md §7
	// names INDEX_ARCHIVE_MISMATCH for).
	proj, err := store.UpsertProject(ctx, "/p/demo", "demo-abc1234567", now)
	if err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	report, err := Reconcile(ctx, store, arc, proj.ID, proj.Slug, now)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.Clean {
		t.Fatalf("expected drift between an empty Index and a seeded Archive")
	}
	if report.UnifiedDiff == "" {
		t.Errorf("expected a non-empty unified diff describing the drift")
	}
}
