package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// CreateContactRequest inserts a pending ContactRequest, used both by the
// explicit request_contact tool and by the auto-policy's deferred-send
// path (spec.md §4.7).
func (s *Store) CreateContactRequest(ctx context.Context, projectID int64, from, to, reason string, now time.Time) (model.ContactRequest, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contact_requests (project_id, from_agent, to_agent, reason, state, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, projectID, from, to, reason, string(model.ContactPending), FormatTime(now))
	if err != nil {
		return model.ContactRequest{}, fmt.Errorf("insert contact request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ContactRequest{}, fmt.Errorf("contact request last insert id: %w", err)
	}
	return model.ContactRequest{ID: id, ProjectID: projectID, FromAgent: from, ToAgent: to, Reason: reason, State: model.ContactPending, CreatedTS: now}, nil
}

// PendingContactRequest returns the most recent pending request from→to,
// or sql.ErrNoRows if none exists.
func (s *Store) PendingContactRequest(ctx context.Context, projectID int64, from, to string) (model.ContactRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, from_agent, to_agent, reason, state, created_ts, decided_ts
		FROM contact_requests
		WHERE project_id = ? AND from_agent = ? AND to_agent = ? AND state = ?
		ORDER BY created_ts DESC LIMIT 1
	`, projectID, from, to, string(model.ContactPending))
	return scanContactRequest(row)
}

// AcceptedContactExists reports whether from→to has ever been accepted.
func (s *Store) AcceptedContactExists(ctx context.Context, projectID int64, from, to string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contact_requests
			WHERE project_id = ? AND from_agent = ? AND to_agent = ? AND state = ?
		)
	`, projectID, from, to, string(model.ContactAccepted))
	var exists int
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("accepted contact check: %w", err)
	}
	return exists != 0, nil
}

// DecideContactRequest sets a contact request's terminal state.
func (s *Store) DecideContactRequest(ctx context.Context, id int64, state model.ContactState, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE contact_requests SET state = ?, decided_ts = ? WHERE id = ?`, string(state), FormatTime(now), id)
	if err != nil {
		return fmt.Errorf("decide contact request: %w", err)
	}
	return nil
}

func scanContactRequest(row *sql.Row) (model.ContactRequest, error) {
	var c model.ContactRequest
	var state, createdTS string
	var decidedTS sql.NullString
	if err := row.Scan(&c.ID, &c.ProjectID, &c.FromAgent, &c.ToAgent, &c.Reason, &state, &createdTS, &decidedTS); err != nil {
		return c, err
	}
	c.State = model.ContactState(state)
	var err error
	if c.CreatedTS, err = ParseTime(createdTS); err != nil {
		return c, fmt.Errorf("parse contact request created_ts: %w", err)
	}
	if decidedTS.Valid {
		ts, err := ParseTime(decidedTS.String)
		if err != nil {
			return c, fmt.Errorf("parse contact request decided_ts: %w", err)
		}
		c.DecidedTS = &ts
	}
	return c, nil
}
