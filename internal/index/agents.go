package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// UpsertAgent implements register_agent's idempotent-on-(project,name)
// semantics: a new name inserts a row; an existing name updates the
// mutable fields (program, model, task_description, last_active_ts) and
// leaves inception_ts and contact_policy untouched.
func (s *Store) UpsertAgent(ctx context.Context, a model.Agent) (model.Agent, error) {
	existing, err := s.GetAgent(ctx, a.ProjectID, a.Name)
	switch {
	case err == nil:
		_, execErr := s.db.ExecContext(ctx, `
			UPDATE agents SET program = ?, model = ?, task_description = ?, last_active_ts = ?
			WHERE project_id = ? AND name = ?
		`, a.Program, a.Model, a.TaskDescription, FormatTime(a.LastActiveTS), a.ProjectID, a.Name)
		if execErr != nil {
			return model.Agent{}, fmt.Errorf("update agent: %w", execErr)
		}
		existing.Program = a.Program
		existing.Model = a.Model
		existing.TaskDescription = a.TaskDescription
		existing.LastActiveTS = a.LastActiveTS
		return existing, nil
	case err != sql.ErrNoRows:
		return model.Agent{}, err
	}

	policy := a.ContactPolicy
	if policy == "" {
		policy = model.PolicyAuto
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ProjectID, a.Name, a.Program, a.Model, a.TaskDescription, FormatTime(a.InceptionTS), FormatTime(a.LastActiveTS), string(policy))
	if err != nil {
		return model.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Agent{}, fmt.Errorf("agent last insert id: %w", err)
	}
	a.ID = id
	a.ContactPolicy = policy
	return a, nil
}

// GetAgent returns sql.ErrNoRows when no such agent exists.
func (s *Store) GetAgent(ctx context.Context, projectID int64, name string) (model.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy
		FROM agents WHERE project_id = ? AND name = ?
	`, projectID, name)
	return scanAgent(row)
}

func scanAgent(row *sql.Row) (model.Agent, error) {
	var a model.Agent
	var inceptionTS, lastActiveTS, policy string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription, &inceptionTS, &lastActiveTS, &policy); err != nil {
		return a, err
	}
	var err error
	if a.InceptionTS, err = ParseTime(inceptionTS); err != nil {
		return a, fmt.Errorf("parse agent inception_ts: %w", err)
	}
	if a.LastActiveTS, err = ParseTime(lastActiveTS); err != nil {
		return a, fmt.Errorf("parse agent last_active_ts: %w", err)
	}
	a.ContactPolicy = model.ContactPolicy(policy)
	return a, nil
}

// ListAgents returns every agent in the project, optionally restricted to
// those active within the last 7 days (spec.md §4.4).
func (s *Store) ListAgents(ctx context.Context, projectID int64, activeOnly bool, now time.Time) ([]model.Agent, error) {
	query := `
		SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, contact_policy
		FROM agents WHERE project_id = ?
	`
	args := []any{projectID}
	if activeOnly {
		query += ` AND last_active_ts >= ?`
		args = append(args, FormatTime(now.Add(-7*24*time.Hour)))
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		var a model.Agent
		var inceptionTS, lastActiveTS, policy string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription, &inceptionTS, &lastActiveTS, &policy); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if a.InceptionTS, err = ParseTime(inceptionTS); err != nil {
			return nil, fmt.Errorf("parse agent inception_ts: %w", err)
		}
		if a.LastActiveTS, err = ParseTime(lastActiveTS); err != nil {
			return nil, fmt.Errorf("parse agent last_active_ts: %w", err)
		}
		a.ContactPolicy = model.ContactPolicy(policy)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetContactPolicy updates an agent's contact policy.
func (s *Store) SetContactPolicy(ctx context.Context, projectID int64, name string, policy model.ContactPolicy) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET contact_policy = ? WHERE project_id = ? AND name = ?`, string(policy), projectID, name)
	if err != nil {
		return fmt.Errorf("set contact policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchLastActive updates an agent's last_active_ts, used whenever the
// agent interacts with the mailbox (spec.md §4.5's fetch_inbox contract).
func (s *Store) TouchLastActive(ctx context.Context, projectID int64, name string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_active_ts = ? WHERE project_id = ? AND name = ?`, FormatTime(now), projectID, name)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}
