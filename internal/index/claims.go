package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// ActiveClaims implements leases.Store: every claim in the project that is
// not released and has not yet expired as of now.
func (s *Store) ActiveClaims(ctx context.Context, projectID int64, now time.Time) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts
		FROM claims
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?
	`, projectID, FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("query active claims: %w", err)
	}
	defer rows.Close()

	var out []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListClaims returns every claim in a project, released or not, for
// internal/diag's Archive-vs-Index comparison.
func (s *Store) ListClaims(ctx context.Context, projectID int64) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts
		FROM claims WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaim(rows *sql.Rows) (model.Claim, error) {
	var c model.Claim
	var exclusive int
	var createdTS, expiresTS string
	var releasedTS sql.NullString
	if err := rows.Scan(&c.ID, &c.ProjectID, &c.AgentName, &c.Path, &exclusive, &c.Reason, &createdTS, &expiresTS, &releasedTS); err != nil {
		return c, fmt.Errorf("scan claim: %w", err)
	}
	c.Exclusive = exclusive != 0
	var err error
	if c.CreatedTS, err = ParseTime(createdTS); err != nil {
		return c, fmt.Errorf("parse claim created_ts: %w", err)
	}
	if c.ExpiresTS, err = ParseTime(expiresTS); err != nil {
		return c, fmt.Errorf("parse claim expires_ts: %w", err)
	}
	if releasedTS.Valid {
		ts, err := ParseTime(releasedTS.String)
		if err != nil {
			return c, fmt.Errorf("parse claim released_ts: %w", err)
		}
		c.ReleasedTS = &ts
	}
	return c, nil
}

// InsertClaim implements leases.Store.
func (s *Store) InsertClaim(ctx context.Context, c model.Claim) error {
	exclusive := 0
	if c.Exclusive {
		exclusive = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO claims (id, project_id, agent_name, path, exclusive, reason, created_ts, expires_ts, released_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`, c.ID, c.ProjectID, c.AgentName, c.Path, exclusive, c.Reason, FormatTime(c.CreatedTS), FormatTime(c.ExpiresTS))
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// ExtendClaim implements leases.Store.
func (s *Store) ExtendClaim(ctx context.Context, claimID string, newExpiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE claims SET expires_ts = ? WHERE id = ?`, FormatTime(newExpiry), claimID)
	if err != nil {
		return fmt.Errorf("extend claim %s: %w", claimID, err)
	}
	return nil
}

// ReleaseClaim implements leases.Store.
func (s *Store) ReleaseClaim(ctx context.Context, claimID string, releasedTS time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE claims SET released_ts = ? WHERE id = ?`, FormatTime(releasedTS), claimID)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", claimID, err)
	}
	return nil
}

// SweepExpired implements leases.Store.
func (s *Store) SweepExpired(ctx context.Context, projectID int64, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET released_ts = ?
		WHERE project_id = ? AND released_ts IS NULL AND expires_ts <= ?
	`, FormatTime(now), projectID, FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("sweep expired claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ClaimsForPath returns active claims in the project whose literal path
// equals path, used by the Policy layer's "shared overlapping claim"
// contact-auto check (spec.md §4.7(a)).
func (s *Store) ClaimsForPath(ctx context.Context, projectID int64, path string, now time.Time) ([]model.Claim, error) {
	all, err := s.ActiveClaims(ctx, projectID, now)
	if err != nil {
		return nil, err
	}
	var out []model.Claim
	for _, c := range all {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out, nil
}
