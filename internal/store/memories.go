package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetMemory creates or updates a (user, category, key) fact, matching the
// original's upsert-with-onupdate semantics.
func (s *Store) SetMemory(ctx context.Context, userID int64, category, key, content string, metadata map[string]any) (*Memory, error) {
	metaJSON, err := encodeJSON(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	now := time.Now().UTC()
	var userIDArg any
	if userID != 0 {
		userIDArg = userID
	}
	// ON CONFLICT never matches a NULL user_id, so an existing row is
	// updated by id first.
	existing, err := s.GetMemory(ctx, userID, category, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if _, err := s.db.ExecContext(ctx, `UPDATE memories SET content = ?, metadata_json = ?, updated_at = ? WHERE id = ?`, content, metaJSON, now, existing.ID); err != nil {
			return nil, fmt.Errorf("update memory: %w", err)
		}
		return s.GetMemory(ctx, userID, category, key)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (user_id, category, key, content, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category, key) DO UPDATE SET
			content = excluded.content,
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at
	`, userIDArg, category, key, content, metaJSON, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert memory: %w", err)
	}
	return s.GetMemory(ctx, userID, category, key)
}

// GetMemory returns one memory, or nil if it does not exist.
func (s *Store) GetMemory(ctx context.Context, userID int64, category, key string) (*Memory, error) {
	var userIDArg any
	if userID != 0 {
		userIDArg = userID
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, category, key, content, metadata_json, created_at, updated_at
		FROM memories WHERE (user_id IS ? OR user_id = ?) AND category = ? AND key = ?
	`, userIDArg, userIDArg, category, key)
	return scanMemory(row)
}

// DeleteMemory removes a memory. Returns false if it did not exist.
func (s *Store) DeleteMemory(ctx context.Context, userID int64, category, key string) (bool, error) {
	var userIDArg any
	if userID != 0 {
		userIDArg = userID
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories WHERE (user_id IS ? OR user_id = ?) AND category = ? AND key = ?
	`, userIDArg, userIDArg, category, key)
	if err != nil {
		return false, fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListMemories returns memories for a user (every memory when userID is
// 0), optionally filtered by category, newest-updated first, capped at
// limit.
func (s *Store) ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*Memory, error) {
	var userIDArg any
	if userID != 0 {
		userIDArg = userID
	}
	var rows *sql.Rows
	var err error
	if category != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, user_id, category, key, content, metadata_json, created_at, updated_at
			FROM memories WHERE (? IS NULL OR user_id = ?) AND category = ?
			ORDER BY updated_at DESC LIMIT ?
		`, userIDArg, userIDArg, category, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, user_id, category, key, content, metadata_json, created_at, updated_at
			FROM memories WHERE (? IS NULL OR user_id = ?)
			ORDER BY updated_at DESC LIMIT ?
		`, userIDArg, userIDArg, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var userID sql.NullInt64
	var metaJSON string
	err := row.Scan(&m.ID, &userID, &m.Category, &m.Key, &m.Content, &metaJSON, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.UserID = userID.Int64
	m.Metadata = decodeStringMap(metaJSON)
	return &m, nil
}

func scanMemoryRow(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var userID sql.NullInt64
	var metaJSON string
	if err := rows.Scan(&m.ID, &userID, &m.Category, &m.Key, &m.Content, &metaJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	m.UserID = userID.Int64
	m.Metadata = decodeStringMap(metaJSON)
	return &m, nil
}
