// Package diag produces an operator-facing reconciliation report: a
// unified diff between what the Index currently holds for a project and
// what a fresh read of the Archive says it should hold. It supplements
// spec.md's INDEX_ARCHIVE_MISMATCH handling (internal/index.Rebuild
// silently repairs the Index in place) with a report an operator can read
// before deciding to run rebuild-index, grounded on the diff/similarity
// shape of theirongolddev-nzm's internal/output/diff.go.
package diag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/index"
)

// Report is the result of comparing one project's Index against its
// Archive. Clean is true when the two snapshots render identically; a
// non-clean report's UnifiedDiff pinpoints exactly which agent, message,
// or claim records disagree.
type Report struct {
	ProjectSlug string
	Clean       bool
	Similarity  float64
	UnifiedDiff string
}

// Reconcile snapshots the project's current Index rows and the records a
// rebuild would derive from its Archive, then diffs the two renderings.
// It never mutates the Index; callers that want to repair a dirty report
// still call index.Rebuild themselves (Engine.Reconcile, behind
// cmd/agentmaild's rebuild-index subcommand, does so for each dirty
// project right after building its report; the subcommand prints the
// reports once the repairs are done).
func Reconcile(ctx context.Context, store *index.Store, arc *archive.Archive, projectID int64, projectSlug string, now time.Time) (Report, error) {
	indexed, err := renderIndexSnapshot(ctx, store, projectID, now)
	if err != nil {
		return Report{}, fmt.Errorf("render index snapshot: %w", err)
	}
	archived, err := renderArchiveSnapshot(arc)
	if err != nil {
		return Report{}, fmt.Errorf("render archive snapshot: %w", err)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(indexed, archived, true)

	dist := dmp.DiffLevenshtein(diffs)
	maxLen := len(indexed)
	if len(archived) > maxLen {
		maxLen = len(archived)
	}
	similarity := 1.0
	if maxLen > 0 {
		similarity = 1.0 - (float64(dist) / float64(maxLen))
	}

	patches := dmp.PatchMake(indexed, diffs)
	unified := dmp.PatchToText(patches)

	return Report{
		ProjectSlug: projectSlug,
		Clean:       indexed == archived,
		Similarity:  similarity,
		UnifiedDiff: unified,
	}, nil
}

func renderIndexSnapshot(ctx context.Context, store *index.Store, projectID int64, now time.Time) (string, error) {
	var b strings.Builder

	agents, err := store.ListAgents(ctx, projectID, false, now)
	if err != nil {
		return "", fmt.Errorf("list agents: %w", err)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	for _, a := range agents {
		fmt.Fprintf(&b, "agent %s program=%s model=%s policy=%s\n", a.Name, a.Program, a.Model, a.ContactPolicy)
	}

	messages, err := store.ListMessages(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	for _, m := range messages {
		fmt.Fprintf(&b, "message %s from=%s subject=%q importance=%s ack=%v overseer=%v\n",
			m.ID, m.FromAgent, m.Subject, m.Importance, m.AckRequired, m.Overseer)
	}

	claims, err := store.ListClaims(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("list claims: %w", err)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].ID < claims[j].ID })
	for _, c := range claims {
		released := "open"
		if c.ReleasedTS != nil {
			released = c.ReleasedTS.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "claim %s path=%s agent=%s exclusive=%v released=%s\n", c.ID, c.Path, c.AgentName, c.Exclusive, released)
	}

	return b.String(), nil
}

func renderArchiveSnapshot(arc *archive.Archive) (string, error) {
	var b strings.Builder

	profiles, err := arc.WalkAgentProfiles()
	if err != nil {
		return "", fmt.Errorf("walk agent profiles: %w", err)
	}
	type agentLine struct{ name, line string }
	var agentLines []agentLine
	for _, rel := range profiles {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rel, err)
		}
		p, err := archive.UnmarshalAgentProfile(content)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", rel, err)
		}
		agentLines = append(agentLines, agentLine{p.Name, fmt.Sprintf("agent %s program=%s model=%s policy=%s\n", p.Name, p.Program, p.Model, p.ContactPolicy)})
	}
	sort.Slice(agentLines, func(i, j int) bool { return agentLines[i].name < agentLines[j].name })
	for _, a := range agentLines {
		b.WriteString(a.line)
	}

	msgPaths, err := arc.WalkCanonicalMessages()
	if err != nil {
		return "", fmt.Errorf("walk messages: %w", err)
	}
	type msgLine struct{ id, line string }
	var msgLines []msgLine
	for _, rel := range msgPaths {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rel, err)
		}
		fm, _, err := archive.ParseMessageFile(content)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", rel, err)
		}
		msgLines = append(msgLines, msgLine{fm.ID, fmt.Sprintf("message %s from=%s subject=%q importance=%s ack=%v overseer=%v\n",
			fm.ID, fm.From, fm.Subject, fm.Importance, fm.AckRequired, fm.Overseer)})
	}
	sort.Slice(msgLines, func(i, j int) bool { return msgLines[i].id < msgLines[j].id })
	for _, m := range msgLines {
		b.WriteString(m.line)
	}

	claimPaths, err := arc.WalkClaimFiles()
	if err != nil {
		return "", fmt.Errorf("walk claims: %w", err)
	}
	type claimLine struct{ id, line string }
	var claimLines []claimLine
	for _, rel := range claimPaths {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", rel, err)
		}
		cf, err := archive.UnmarshalClaimFile(content)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", rel, err)
		}
		for _, rec := range cf.Claims {
			released := "open"
			if rec.ReleasedTS != nil {
				released = rec.ReleasedTS.UTC().Format(time.RFC3339)
			}
			claimLines = append(claimLines, claimLine{rec.ID, fmt.Sprintf("claim %s path=%s agent=%s exclusive=%v released=%s\n",
				rec.ID, cf.Path, rec.AgentName, rec.Exclusive, released)})
		}
	}
	sort.Slice(claimLines, func(i, j int) bool { return claimLines[i].id < claimLines[j].id })
	for _, c := range claimLines {
		b.WriteString(c.line)
	}

	return b.String(), nil
}
