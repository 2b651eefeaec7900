package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AddMessage records one conversation turn for later summarization.
func (s *Store) AddMessage(ctx context.Context, sessionName, role, content string, userID int64) (*Message, error) {
	now := time.Now().UTC()
	var userIDArg any
	if userID != 0 {
		userIDArg = userID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_name, role, content, user_id, summarized, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, sessionName, role, content, userIDArg, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, SessionName: sessionName, Role: role, Content: content, UserID: userID, CreatedAt: now}, nil
}

// UnsummarizedCount returns how many messages in a session have not yet
// been folded into a ConversationSummary.
func (s *Store) UnsummarizedCount(ctx context.Context, sessionName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_name = ? AND summarized = 0
	`, sessionName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unsummarized messages: %w", err)
	}
	return count, nil
}

// UnsummarizedMessages returns unsummarized messages for a session, oldest
// first.
func (s *Store) UnsummarizedMessages(ctx context.Context, sessionName string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, role, content, user_id, summarized, created_at
		FROM messages WHERE session_name = ? AND summarized = 0
		ORDER BY created_at ASC, id ASC
	`, sessionName)
	if err != nil {
		return nil, fmt.Errorf("query unsummarized messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the most recent limit messages for a session,
// oldest first (for display/context purposes).
func (s *Store) RecentMessages(ctx context.Context, sessionName string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, role, content, user_id, summarized, created_at
		FROM (
			SELECT id, session_name, role, content, user_id, summarized, created_at
			FROM messages WHERE session_name = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, sessionName, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessagesAll returns the most recent limit messages across every
// session, newest first, for the Dashboard API's cross-session feed.
func (s *Store) RecentMessagesAll(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, role, content, user_id, summarized, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages across sessions: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkSummarized flags the given message IDs as folded into a summary, in
// a transaction of its own. CommitSummary does the same marking inside the
// transaction of its summary insert.
func (s *Store) MarkSummarized(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET summarized = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("mark message %d summarized: %w", id, err)
		}
	}
	return tx.Commit()
}

// SearchMessages returns messages across every session whose content
// contains query (case-insensitive), newest first.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, role, content, user_id, summarized, created_at
		FROM messages WHERE content LIKE ? ESCAPE '\' COLLATE NOCASE
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SessionMessageCount pairs a session name with its total message count.
type SessionMessageCount struct {
	SessionName string
	Count       int
}

// MessageStatsBySession returns message counts grouped by session, busiest
// first.
func (s *Store) MessageStatsBySession(ctx context.Context, limit int) ([]SessionMessageCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_name, COUNT(*) AS cnt
		FROM messages GROUP BY session_name
		ORDER BY cnt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("message stats by session: %w", err)
	}
	defer rows.Close()
	var out []SessionMessageCount
	for rows.Next() {
		var r SessionMessageCount
		if err := rows.Scan(&r.SessionName, &r.Count); err != nil {
			return nil, fmt.Errorf("scan message stats: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		var m Message
		var userID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionName, &m.Role, &m.Content, &userID, &m.Summarized, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.UserID = userID.Int64
		out = append(out, &m)
	}
	return out, rows.Err()
}
