package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommitSummary inserts a conversation summary and marks messageIDs
// summarized in one transaction, so a crash between the two never leaves
// messages that are neither summarized nor recoverable.
func (s *Store) CommitSummary(ctx context.Context, sum ConversationSummary, messageIDs []int64) (*ConversationSummary, error) {
	topics, err := encodeJSON(sum.Topics)
	if err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var userIDArg, personaIDArg any
	if sum.UserID != 0 {
		userIDArg = sum.UserID
	}
	if sum.PersonaID != 0 {
		personaIDArg = sum.PersonaID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_summaries
			(session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sum.SessionName, userIDArg, personaIDArg, sum.Summary, sum.ShortSummary, topics, sum.MessageCount, sum.IsMilestone, now)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if len(messageIDs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET summarized = 1 WHERE id = ?`)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()
		for _, mid := range messageIDs {
			if _, err := stmt.ExecContext(ctx, mid); err != nil {
				return nil, fmt.Errorf("mark message %d summarized: %w", mid, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sum.ID = id
	sum.CreatedAt = now
	return &sum, nil
}

// RecentSummaries returns the most recent limit summaries for a session,
// newest first — the shape the Recall Builder consumes directly.
func (s *Store) RecentSummaries(ctx context.Context, sessionName string, limit int) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
		FROM conversation_summaries WHERE session_name = ?
		ORDER BY created_at DESC LIMIT ?
	`, sessionName, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Summaries returns the most recent limit summaries, optionally filtered
// by session name (all sessions if empty), newest first, for the
// Dashboard API.
func (s *Store) Summaries(ctx context.Context, sessionName string, limit int) ([]*ConversationSummary, error) {
	var rows *sql.Rows
	var err error
	if sessionName != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries WHERE session_name = ?
			ORDER BY created_at DESC LIMIT ?
		`, sessionName, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries
			ORDER BY created_at DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// SearchSummaries performs a naive substring search over summary and
// short_summary text, optionally filtered by session name (all sessions if
// empty), newest first, for the /summaries search command.
func (s *Store) SearchSummaries(ctx context.Context, sessionName, query string, limit int) ([]*ConversationSummary, error) {
	like := "%" + query + "%"
	var rows *sql.Rows
	var err error
	if sessionName != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries
			WHERE session_name = ? AND (summary LIKE ? OR short_summary LIKE ?)
			ORDER BY created_at DESC LIMIT ?
		`, sessionName, like, like, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries
			WHERE summary LIKE ? OR short_summary LIKE ?
			ORDER BY created_at DESC LIMIT ?
		`, like, like, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Milestones returns milestone summaries, optionally filtered by session
// name (all sessions if empty), newest first.
func (s *Store) Milestones(ctx context.Context, sessionName string, limit int) ([]*ConversationSummary, error) {
	var rows *sql.Rows
	var err error
	if sessionName != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries
			WHERE session_name = ? AND is_milestone = 1
			ORDER BY created_at DESC LIMIT ?
		`, sessionName, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, user_id, persona_id, summary, short_summary, topics, message_count, is_milestone, created_at
			FROM conversation_summaries
			WHERE is_milestone = 1
			ORDER BY created_at DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]*ConversationSummary, error) {
	var out []*ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		var userID, personaID sql.NullInt64
		var shortSummary, topics sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionName, &userID, &personaID, &c.Summary, &shortSummary, &topics,
			&c.MessageCount, &c.IsMilestone, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		c.UserID = userID.Int64
		c.PersonaID = personaID.Int64
		c.ShortSummary = shortSummary.String
		c.Topics = decodeStringSlice(topics.String)
		out = append(out, &c)
	}
	return out, rows.Err()
}
