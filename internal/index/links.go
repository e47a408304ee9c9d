package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// UpsertLink inserts a pending link if the direction does not yet exist,
// or returns the existing row. Both directions must independently reach
// `accepted` before cross-project traffic is allowed (spec.md §9's
// cyclic-reference guidance: one directed row per direction, no graph
// object materialized).
func (s *Store) UpsertLink(ctx context.Context, fromProjectID int64, fromAgent string, toProjectID int64, toAgent string, now time.Time) (model.AgentLink, error) {
	existing, err := s.GetLink(ctx, fromProjectID, fromAgent, toProjectID, toAgent)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return model.AgentLink{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_links (from_project_id, from_agent, to_project_id, to_agent, state, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fromProjectID, fromAgent, toProjectID, toAgent, string(model.LinkPending), FormatTime(now))
	if err != nil {
		return model.AgentLink{}, fmt.Errorf("insert agent link: %w", err)
	}
	return model.AgentLink{
		FromProjectID: fromProjectID, FromAgent: fromAgent,
		ToProjectID: toProjectID, ToAgent: toAgent,
		State: model.LinkPending, CreatedTS: now,
	}, nil
}

// GetLink returns sql.ErrNoRows when no row exists for this direction.
func (s *Store) GetLink(ctx context.Context, fromProjectID int64, fromAgent string, toProjectID int64, toAgent string) (model.AgentLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT from_project_id, from_agent, to_project_id, to_agent, state, created_ts, decided_ts
		FROM agent_links WHERE from_project_id = ? AND from_agent = ? AND to_project_id = ? AND to_agent = ?
	`, fromProjectID, fromAgent, toProjectID, toAgent)

	var l model.AgentLink
	var state, createdTS string
	var decidedTS sql.NullString
	if err := row.Scan(&l.FromProjectID, &l.FromAgent, &l.ToProjectID, &l.ToAgent, &state, &createdTS, &decidedTS); err != nil {
		return l, err
	}
	l.State = model.LinkState(state)
	var err error
	if l.CreatedTS, err = ParseTime(createdTS); err != nil {
		return l, fmt.Errorf("parse link created_ts: %w", err)
	}
	if decidedTS.Valid {
		ts, err := ParseTime(decidedTS.String)
		if err != nil {
			return l, fmt.Errorf("parse link decided_ts: %w", err)
		}
		l.DecidedTS = &ts
	}
	return l, nil
}

// DecideLink sets a link direction's state (accepted or blocked).
func (s *Store) DecideLink(ctx context.Context, fromProjectID int64, fromAgent string, toProjectID int64, toAgent string, state model.LinkState, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_links SET state = ?, decided_ts = ?
		WHERE from_project_id = ? AND from_agent = ? AND to_project_id = ? AND to_agent = ?
	`, string(state), FormatTime(now), fromProjectID, fromAgent, toProjectID, toAgent)
	if err != nil {
		return fmt.Errorf("decide link: %w", err)
	}
	return nil
}

// LinkAccepted reports whether both directions between the two agent
// identities are in the accepted state.
func (s *Store) LinkAccepted(ctx context.Context, fromProjectID int64, fromAgent string, toProjectID int64, toAgent string) (bool, error) {
	forward, err := s.GetLink(ctx, fromProjectID, fromAgent, toProjectID, toAgent)
	if err != nil {
		return false, nil
	}
	backward, err := s.GetLink(ctx, toProjectID, toAgent, fromProjectID, fromAgent)
	if err != nil {
		return false, nil
	}
	return forward.State == model.LinkAccepted && backward.State == model.LinkAccepted, nil
}
