package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddUsageRecord persists one query's cost/turn/token accounting.
func (s *Store) AddUsageRecord(ctx context.Context, u UsageRecord) (*UsageRecord, error) {
	now := time.Now().UTC()
	var userIDArg any
	if u.UserID != 0 {
		userIDArg = u.UserID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (session_name, cost_usd, num_turns, duration_ms, input_tokens, output_tokens, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.SessionName, u.CostUSD, u.NumTurns, u.DurationMS, u.InputTokens, u.OutputTokens, userIDArg, now)
	if err != nil {
		return nil, fmt.Errorf("insert usage record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	u.CreatedAt = now
	return &u, nil
}

// UsageTotals aggregates cost/turns/tokens for a session across all
// recorded queries, for the /usage command.
type UsageTotals struct {
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTurns     int64   `json:"total_turns"`
	TotalInputTok  int64   `json:"total_input_tokens"`
	TotalOutputTok int64   `json:"total_output_tokens"`
	QueryCount     int64   `json:"query_count"`
}

// SessionUsageTotals sums all usage records for a session.
func (s *Store) SessionUsageTotals(ctx context.Context, sessionName string) (*UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(num_turns), 0),
		       COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COUNT(*)
		FROM usage_records WHERE session_name = ?
	`, sessionName).Scan(&t.TotalCostUSD, &t.TotalTurns, &t.TotalInputTok, &t.TotalOutputTok, &t.QueryCount)
	if err != nil {
		return nil, fmt.Errorf("sum usage records: %w", err)
	}
	return &t, nil
}

// RecentUsageRecords returns the most recent limit usage records for a
// session, newest first.
func (s *Store) RecentUsageRecords(ctx context.Context, sessionName string, limit int) ([]*UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_name, cost_usd, num_turns, duration_ms, input_tokens, output_tokens, user_id, created_at
		FROM usage_records WHERE session_name = ?
		ORDER BY created_at DESC LIMIT ?
	`, sessionName, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent usage: %w", err)
	}
	defer rows.Close()

	var out []*UsageRecord
	for rows.Next() {
		var u UsageRecord
		var userID sql.NullInt64
		if err := rows.Scan(&u.ID, &u.SessionName, &u.CostUSD, &u.NumTurns, &u.DurationMS,
			&u.InputTokens, &u.OutputTokens, &userID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		u.UserID = userID.Int64
		out = append(out, &u)
	}
	return out, rows.Err()
}

// TotalUsage sums usage records across every session, for the Dashboard
// API's aggregate usage view.
func (s *Store) TotalUsage(ctx context.Context) (*UsageTotals, error) {
	var t UsageTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(num_turns), 0),
		       COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COUNT(*)
		FROM usage_records
	`).Scan(&t.TotalCostUSD, &t.TotalTurns, &t.TotalInputTok, &t.TotalOutputTok, &t.QueryCount)
	if err != nil {
		return nil, fmt.Errorf("sum total usage: %w", err)
	}
	return &t, nil
}

// UsageRecords returns the most recent limit usage records, optionally
// filtered by session name (all sessions if empty), newest first.
func (s *Store) UsageRecords(ctx context.Context, sessionName string, limit int) ([]*UsageRecord, error) {
	var rows *sql.Rows
	var err error
	if sessionName != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, cost_usd, num_turns, duration_ms, input_tokens, output_tokens, user_id, created_at
			FROM usage_records WHERE session_name = ?
			ORDER BY created_at DESC LIMIT ?
		`, sessionName, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, session_name, cost_usd, num_turns, duration_ms, input_tokens, output_tokens, user_id, created_at
			FROM usage_records
			ORDER BY created_at DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []*UsageRecord
	for rows.Next() {
		var u UsageRecord
		var userID sql.NullInt64
		if err := rows.Scan(&u.ID, &u.SessionName, &u.CostUSD, &u.NumTurns, &u.DurationMS,
			&u.InputTokens, &u.OutputTokens, &userID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		u.UserID = userID.Int64
		out = append(out, &u)
	}
	return out, rows.Err()
}
