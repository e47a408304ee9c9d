package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// UpsertProject inserts a project row if human_key is new, or returns the
// existing row unchanged otherwise (ensure_project is idempotent per INV-5:
// slug is a pure function of human_key, so a second call with the same key
// must never mint a second row or a different slug).
func (s *Store) UpsertProject(ctx context.Context, humanKey, slug string, now time.Time) (model.Project, error) {
	existing, err := s.GetProjectByHumanKey(ctx, humanKey)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return model.Project{}, err
	}

	metaJSON := "{}"
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (human_key, slug, created_ts, meta) VALUES (?, ?, ?, ?)
	`, humanKey, slug, FormatTime(now), metaJSON)
	if err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Project{}, fmt.Errorf("project last insert id: %w", err)
	}
	return model.Project{ID: id, HumanKey: humanKey, Slug: slug, CreatedTS: now, Meta: map[string]string{}}, nil
}

// GetProjectByHumanKey returns sql.ErrNoRows when no project exists yet.
func (s *Store) GetProjectByHumanKey(ctx context.Context, humanKey string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, human_key, slug, created_ts, meta FROM projects WHERE human_key = ?
	`, humanKey)
	return scanProject(row)
}

// GetProjectBySlug returns sql.ErrNoRows when no project exists with slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, human_key, slug, created_ts, meta FROM projects WHERE slug = ?
	`, slug)
	return scanProject(row)
}

func scanProject(row *sql.Row) (model.Project, error) {
	var p model.Project
	var createdTS, metaJSON string
	if err := row.Scan(&p.ID, &p.HumanKey, &p.Slug, &createdTS, &metaJSON); err != nil {
		return p, err
	}
	var err error
	if p.CreatedTS, err = ParseTime(createdTS); err != nil {
		return p, fmt.Errorf("parse project created_ts: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &p.Meta); err != nil {
		return p, fmt.Errorf("parse project meta: %w", err)
	}
	return p, nil
}

// ListProjects returns every known project, ordered by slug.
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, human_key, slug, created_ts, meta FROM projects ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		var createdTS, metaJSON string
		if err := rows.Scan(&p.ID, &p.HumanKey, &p.Slug, &createdTS, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if p.CreatedTS, err = ParseTime(createdTS); err != nil {
			return nil, fmt.Errorf("parse project created_ts: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &p.Meta); err != nil {
			return nil, fmt.Errorf("parse project meta: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
