package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddHeartbeatCheck creates a new recurring "still okay" prompt.
func (s *Store) AddHeartbeatCheck(ctx context.Context, name, prompt string) (*HeartbeatCheck, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_checks (name, prompt, enabled, created_at) VALUES (?, ?, 1, ?)
	`, name, prompt, now)
	if err != nil {
		return nil, fmt.Errorf("insert heartbeat check: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &HeartbeatCheck{ID: id, Name: name, Prompt: prompt, Enabled: true, CreatedAt: now}, nil
}

// ListHeartbeatChecks returns all heartbeat checks, optionally only enabled
// ones, in creation order.
func (s *Store) ListHeartbeatChecks(ctx context.Context, enabledOnly bool) ([]*HeartbeatCheck, error) {
	query := `SELECT id, name, prompt, enabled, created_at FROM heartbeat_checks`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list heartbeat checks: %w", err)
	}
	defer rows.Close()

	var out []*HeartbeatCheck
	for rows.Next() {
		var h HeartbeatCheck
		if err := rows.Scan(&h.ID, &h.Name, &h.Prompt, &h.Enabled, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan heartbeat check: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// GetHeartbeatCheck returns a heartbeat check by name, or nil if unknown.
func (s *Store) GetHeartbeatCheck(ctx context.Context, name string) (*HeartbeatCheck, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, prompt, enabled, created_at FROM heartbeat_checks WHERE name = ?`, name)
	var h HeartbeatCheck
	err := row.Scan(&h.ID, &h.Name, &h.Prompt, &h.Enabled, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan heartbeat check: %w", err)
	}
	return &h, nil
}

// DeleteHeartbeatCheck removes a heartbeat check by name.
func (s *Store) DeleteHeartbeatCheck(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM heartbeat_checks WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete heartbeat check: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ToggleHeartbeatCheck enables or disables a heartbeat check by name.
func (s *Store) ToggleHeartbeatCheck(ctx context.Context, name string, enabled bool) (*HeartbeatCheck, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE heartbeat_checks SET enabled = ? WHERE name = ?`, enabled, name); err != nil {
		return nil, fmt.Errorf("toggle heartbeat check: %w", err)
	}
	return s.GetHeartbeatCheck(ctx, name)
}
