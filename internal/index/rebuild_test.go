package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/model"
)

func TestRebuildReconstructsAgentsMessagesAndClaims(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	arc, err := archive.Open(t.TempDir())
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}

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

	store, err := Open(filepath.Join(t.TempDir(), "store.sqlite3"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	defer store.Close()

	proj, err := store.UpsertProject(ctx, "/p/demo", "demo-abc1234567", now)
	if err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	if err := Rebuild(ctx, store, arc, proj.ID); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	agents, err := store.ListAgents(ctx, proj.ID, false, now)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "Alpha" {
		t.Fatalf("expected rebuilt Alpha agent, got %+v", agents)
	}

	got, err := store.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Subject != "Hi" || got.BodyMD != "Hello body\n" {
		t.Fatalf("unexpected rebuilt message: %+v", got)
	}

	recipients, err := store.RecipientsOf(ctx, msg.ID)
	if err != nil {
		t.Fatalf("RecipientsOf: %v", err)
	}
	if len(recipients) != 1 || recipients[0].AgentName != "Beta" {
		t.Fatalf("unexpected rebuilt recipients: %+v", recipients)
	}

	claims, err := store.ActiveClaims(ctx, proj.ID, now)
	if err != nil {
		t.Fatalf("ActiveClaims: %v", err)
	}
	if len(claims) != 1 || claims[0].Path != "src/**" {
		t.Fatalf("unexpected rebuilt claims: %+v", claims)
	}
}
