package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentfleet/agentmaild/internal/archive"
	"github.com/agentfleet/agentmaild/internal/model"
)

// Rebuild reconstructs every Index row for one project from its Archive
// alone (spec.md §4.2/§4.3's rebuild requirement, P3, and the crash
// recovery pass of §5). It is safe to call on a partially-populated Index:
// existing rows for the project are wiped first, so the result is exactly
// what the Archive's files describe, no more and no less.
func Rebuild(ctx context.Context, store *Store, arc *archive.Archive, projectID int64) error {
	if err := store.wipeProject(ctx, projectID); err != nil {
		return fmt.Errorf("wipe project before rebuild: %w", err)
	}

	if err := rebuildAgents(ctx, store, arc, projectID); err != nil {
		return fmt.Errorf("rebuild agents: %w", err)
	}
	if err := rebuildMessages(ctx, store, arc, projectID); err != nil {
		return fmt.Errorf("rebuild messages: %w", err)
	}
	if err := rebuildClaims(ctx, store, arc, projectID); err != nil {
		return fmt.Errorf("rebuild claims: %w", err)
	}
	return nil
}

func (s *Store) wipeProject(ctx context.Context, projectID int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM recipients WHERE message_id IN (SELECT id FROM messages WHERE project_id = ?)`,
			`DELETE FROM messages WHERE project_id = ?`,
			`DELETE FROM claims WHERE project_id = ?`,
			`DELETE FROM agents WHERE project_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
}

func rebuildAgents(ctx context.Context, store *Store, arc *archive.Archive, projectID int64) error {
	paths, err := arc.WalkAgentProfiles()
	if err != nil {
		return err
	}
	for _, rel := range paths {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		p, err := archive.UnmarshalAgentProfile(content)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		agent := model.Agent{
			ProjectID:       projectID,
			Name:            p.Name,
			Program:         p.Program,
			Model:           p.Model,
			TaskDescription: p.TaskDescription,
			InceptionTS:     p.InceptionTS,
			LastActiveTS:    p.LastActiveTS,
			ContactPolicy:   model.ContactPolicy(p.ContactPolicy),
		}
		if _, err := store.UpsertAgent(ctx, agent); err != nil {
			return fmt.Errorf("upsert agent %s: %w", p.Name, err)
		}
	}
	return nil
}

func rebuildMessages(ctx context.Context, store *Store, arc *archive.Archive, projectID int64) error {
	paths, err := arc.WalkCanonicalMessages()
	if err != nil {
		return err
	}
	for _, rel := range paths {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		fm, body, err := archive.ParseMessageFile(content)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		created, err := ParseTimeRFC3339Milli(fm.Created)
		if err != nil {
			return fmt.Errorf("parse created ts in %s: %w", rel, err)
		}
		msg := model.Message{
			ID:          fm.ID,
			ProjectID:   projectID,
			ThreadID:    fm.ThreadID,
			Subject:     fm.Subject,
			BodyMD:      body,
			FromAgent:   fm.From,
			CreatedTS:   created,
			Importance:  model.Importance(fm.Importance),
			AckRequired: fm.AckRequired,
			Overseer:    fm.Overseer,
		}
		if err := store.InsertMessage(ctx, msg, fm.To, fm.CC, fm.BCC); err != nil {
			return fmt.Errorf("insert message %s: %w", fm.ID, err)
		}
	}
	return nil
}

func rebuildClaims(ctx context.Context, store *Store, arc *archive.Archive, projectID int64) error {
	paths, err := arc.WalkClaimFiles()
	if err != nil {
		return err
	}
	for _, rel := range paths {
		content, err := arc.ReadFile(rel)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		cf, err := archive.UnmarshalClaimFile(content)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		for _, rec := range cf.Claims {
			claim := model.Claim{
				ID:         rec.ID,
				ProjectID:  projectID,
				AgentName:  rec.AgentName,
				Path:       cf.Path,
				Exclusive:  rec.Exclusive,
				Reason:     rec.Reason,
				CreatedTS:  rec.CreatedTS,
				ExpiresTS:  rec.ExpiresTS,
				ReleasedTS: rec.ReleasedTS,
			}
			if err := store.InsertClaim(ctx, claim); err != nil {
				return fmt.Errorf("insert claim %s: %w", claim.ID, err)
			}
			if claim.ReleasedTS != nil {
				if err := store.ReleaseClaim(ctx, claim.ID, *claim.ReleasedTS); err != nil {
					return fmt.Errorf("release claim %s: %w", claim.ID, err)
				}
			}
		}
	}
	return nil
}
