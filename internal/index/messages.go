package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentfleet/agentmaild/internal/model"
)

// InsertMessage writes the message row and one recipient row per
// (to|cc|bcc) name, inside one transaction.
func (s *Store) InsertMessage(ctx context.Context, msg model.Message, to, cc, bcc []string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		ackRequired := 0
		if msg.AckRequired {
			ackRequired = 1
		}
		overseer := 0
		if msg.Overseer {
			overseer = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, project_id, thread_id, subject, body_md, from_agent, created_ts, importance, ack_required, overseer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ProjectID, msg.ThreadID, msg.Subject, msg.BodyMD, msg.FromAgent, FormatTime(msg.CreatedTS), string(msg.Importance), ackRequired, overseer)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		insertRecipients := func(names []string, kind model.RecipientKind) error {
			for _, name := range names {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO recipients (message_id, agent_name, kind) VALUES (?, ?, ?)
				`, msg.ID, name, string(kind)); err != nil {
					return fmt.Errorf("insert recipient %s: %w", name, err)
				}
			}
			return nil
		}
		if err := insertRecipients(to, model.KindTo); err != nil {
			return err
		}
		if err := insertRecipients(cc, model.KindCC); err != nil {
			return err
		}
		if err := insertRecipients(bcc, model.KindBCC); err != nil {
			return err
		}
		return nil
	})
}

// ListMessages returns every message for a project regardless of
// recipient or sender, for internal/diag's Archive-vs-Index comparison.
func (s *Store) ListMessages(ctx context.Context, projectID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, thread_id, subject, body_md, from_agent, created_ts, importance, ack_required, overseer
		FROM messages WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessage returns sql.ErrNoRows when no such message exists.
func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, thread_id, subject, body_md, from_agent, created_ts, importance, ack_required, overseer
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

func scanMessage(row *sql.Row) (model.Message, error) {
	var m model.Message
	var createdTS, importance string
	var ackRequired, overseer int
	if err := row.Scan(&m.ID, &m.ProjectID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.FromAgent, &createdTS, &importance, &ackRequired, &overseer); err != nil {
		return m, err
	}
	var err error
	if m.CreatedTS, err = ParseTime(createdTS); err != nil {
		return m, fmt.Errorf("parse message created_ts: %w", err)
	}
	m.Importance = model.Importance(importance)
	m.AckRequired = ackRequired != 0
	m.Overseer = overseer != 0
	return m, nil
}

// RecipientsOf returns every recipient row for a message.
func (s *Store) RecipientsOf(ctx context.Context, messageID string) ([]model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, agent_name, kind, read_ts, ack_ts FROM recipients WHERE message_id = ?
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("recipients of %s: %w", messageID, err)
	}
	defer rows.Close()
	return scanRecipients(rows)
}

func scanRecipients(rows *sql.Rows) ([]model.Recipient, error) {
	var out []model.Recipient
	for rows.Next() {
		var r model.Recipient
		var kind string
		var readTS, ackTS sql.NullString
		if err := rows.Scan(&r.MessageID, &r.AgentName, &kind, &readTS, &ackTS); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.Kind = model.RecipientKind(kind)
		if readTS.Valid {
			ts, err := ParseTime(readTS.String)
			if err != nil {
				return nil, fmt.Errorf("parse recipient read_ts: %w", err)
			}
			r.ReadTS = &ts
		}
		if ackTS.Valid {
			ts, err := ParseTime(ackTS.String)
			if err != nil {
				return nil, fmt.Errorf("parse recipient ack_ts: %w", err)
			}
			r.AckTS = &ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InboxOptions filters fetch_inbox/fetch_outbox results (spec.md §4.5).
type InboxOptions struct {
	SinceTS       *time.Time
	UrgentOnly    bool
	Limit         int
}

// FetchInbox returns newest-first messages addressed to agentName as a
// to/cc/bcc recipient, applying InboxOptions.
func (s *Store) FetchInbox(ctx context.Context, projectID int64, agentName string, opts InboxOptions) ([]model.Message, error) {
	query := `
		SELECT m.id, m.project_id, m.thread_id, m.subject, m.body_md, m.from_agent, m.created_ts, m.importance, m.ack_required, m.overseer
		FROM messages m
		JOIN recipients r ON r.message_id = m.id
		WHERE m.project_id = ? AND r.agent_name = ?
	`
	args := []any{projectID, agentName}
	if opts.SinceTS != nil {
		query += ` AND m.created_ts > ?`
		args = append(args, FormatTime(*opts.SinceTS))
	}
	if opts.UrgentOnly {
		query += ` AND m.importance IN ('high', 'urgent')`
	}
	query += ` ORDER BY m.created_ts DESC, m.id DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch inbox: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// FetchOutbox returns newest-first messages sent by agentName.
func (s *Store) FetchOutbox(ctx context.Context, projectID int64, agentName string, opts InboxOptions) ([]model.Message, error) {
	query := `
		SELECT id, project_id, thread_id, subject, body_md, from_agent, created_ts, importance, ack_required, overseer
		FROM messages WHERE project_id = ? AND from_agent = ?
	`
	args := []any{projectID, agentName}
	if opts.SinceTS != nil {
		query += ` AND created_ts > ?`
		args = append(args, FormatTime(*opts.SinceTS))
	}
	if opts.UrgentOnly {
		query += ` AND importance IN ('high', 'urgent')`
	}
	query += ` ORDER BY created_ts DESC, id DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var m model.Message
		var createdTS, importance string
		var ackRequired, overseer int
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.FromAgent, &createdTS, &importance, &ackRequired, &overseer); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var err error
		if m.CreatedTS, err = ParseTime(createdTS); err != nil {
			return nil, fmt.Errorf("parse message created_ts: %w", err)
		}
		m.Importance = model.Importance(importance)
		m.AckRequired = ackRequired != 0
		m.Overseer = overseer != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead stamps read_ts for a (message, agent) recipient row across all
// kinds it appears under, if not already set.
func (s *Store) MarkRead(ctx context.Context, messageID, agentName string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recipients SET read_ts = ? WHERE message_id = ? AND agent_name = ? AND read_ts IS NULL
	`, FormatTime(now), messageID, agentName)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// AcknowledgeMessage stamps ack_ts; like MarkRead, it writes no archive
// change (spec.md §4.5).
func (s *Store) AcknowledgeMessage(ctx context.Context, messageID, agentName string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recipients SET ack_ts = ? WHERE message_id = ? AND agent_name = ?
	`, FormatTime(now), messageID, agentName)
	if err != nil {
		return fmt.Errorf("acknowledge message: %w", err)
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

// ThreadMessages returns every message in a thread, oldest first.
func (s *Store) ThreadMessages(ctx context.Context, projectID int64, threadID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, thread_id, subject, body_md, from_agent, created_ts, importance, ack_required, overseer
		FROM messages WHERE project_id = ? AND thread_id = ? ORDER BY created_ts ASC, id ASC
	`, projectID, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchMessages runs an FTS5 query over subject/body, ordered newest
// first after the match filter (spec.md §4.5, P10).
func (s *Store) SearchMessages(ctx context.Context, projectID int64, query string, limit int) ([]model.Message, error) {
	sqlQuery := `
		SELECT m.id, m.project_id, m.thread_id, m.subject, m.body_md, m.from_agent, m.created_ts, m.importance, m.ack_required, m.overseer
		FROM messages m
		JOIN messages_fts f ON f.rowid = m.rowid
		WHERE m.project_id = ? AND messages_fts MATCH ?
		ORDER BY m.created_ts DESC, m.id DESC
	`
	args := []any{projectID, query}
	if limit > 0 {
		sqlQuery += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SharedThread reports whether two agents have exchanged at least one
// message in the same thread (spec.md §4.7(b), the auto-policy signal).
// The relationship is symmetric: it holds whether a authored in a thread b
// received mail in, or b authored in a thread a received mail in, so an
// agent's first-ever reply to a thread someone else started still counts
// as a shared thread.
func (s *Store) SharedThread(ctx context.Context, projectID int64, a, b string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages m
			WHERE m.project_id = ? AND m.from_agent = ?
			AND EXISTS (
				SELECT 1 FROM messages m2
				JOIN recipients r2 ON r2.message_id = m2.id
				WHERE m2.project_id = ? AND m2.thread_id = m.thread_id AND r2.agent_name = ?
			)
		) OR EXISTS (
			SELECT 1 FROM messages m
			WHERE m.project_id = ? AND m.from_agent = ?
			AND EXISTS (
				SELECT 1 FROM messages m2
				JOIN recipients r2 ON r2.message_id = m2.id
				WHERE m2.project_id = ? AND m2.thread_id = m.thread_id AND r2.agent_name = ?
			)
		)
	`, projectID, a, projectID, b, projectID, b, projectID, a)
	var exists int
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("shared thread check: %w", err)
	}
	return exists != 0, nil
}
