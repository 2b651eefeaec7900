package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AddCronJob creates a new scheduled prompt. Fails if name is taken.
func (s *Store) AddCronJob(ctx context.Context, j CronJob) (*CronJob, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs (name, cron_expression, prompt, session_name, isolated, enabled, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.Name, j.CronExpression, j.Prompt, j.SessionName, j.Isolated, true, nullIfEmpty(j.Timezone), now)
	if err != nil {
		return nil, fmt.Errorf("insert cron job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	j.ID = id
	j.Enabled = true
	j.CreatedAt = now
	return &j, nil
}

// ListCronJobs returns all cron jobs, optionally only enabled ones, in
// creation order.
func (s *Store) ListCronJobs(ctx context.Context, enabledOnly bool) ([]*CronJob, error) {
	query := `SELECT id, name, cron_expression, prompt, session_name, isolated, enabled, timezone, created_at, last_run_at
		FROM cron_jobs`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()
	return scanCronJobs(rows)
}

// GetCronJob returns a cron job by name, or nil if unknown.
func (s *Store) GetCronJob(ctx context.Context, name string) (*CronJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cron_expression, prompt, session_name, isolated, enabled, timezone, created_at, last_run_at
		FROM cron_jobs WHERE name = ?
	`, name)
	var j CronJob
	var timezone sql.NullString
	var lastRunAt sql.NullTime
	err := row.Scan(&j.ID, &j.Name, &j.CronExpression, &j.Prompt, &j.SessionName, &j.Isolated, &j.Enabled, &timezone, &j.CreatedAt, &lastRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cron job: %w", err)
	}
	j.Timezone = timezone.String
	if lastRunAt.Valid {
		j.LastRunAt = &lastRunAt.Time
	}
	return &j, nil
}

// DeleteCronJob removes a cron job by name. Returns false if it did not exist.
func (s *Store) DeleteCronJob(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete cron job: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ToggleCronJob enables or disables a cron job by name. Returns nil if unknown.
func (s *Store) ToggleCronJob(ctx context.Context, name string, enabled bool) (*CronJob, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET enabled = ? WHERE name = ?`, enabled, name); err != nil {
		return nil, fmt.Errorf("toggle cron job: %w", err)
	}
	return s.GetCronJob(ctx, name)
}

// UpdateCronLastRun stamps last_run_at to now for a cron job, called after
// the scheduler dispatches it.
func (s *Store) UpdateCronLastRun(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cron_jobs SET last_run_at = ? WHERE name = ?`, time.Now().UTC(), name)
	if err != nil {
		return fmt.Errorf("update cron last run: %w", err)
	}
	return nil
}

func scanCronJobs(rows *sql.Rows) ([]*CronJob, error) {
	var out []*CronJob
	for rows.Next() {
		var j CronJob
		var timezone sql.NullString
		var lastRunAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.Name, &j.CronExpression, &j.Prompt, &j.SessionName, &j.Isolated, &j.Enabled, &timezone, &j.CreatedAt, &lastRunAt); err != nil {
			return nil, fmt.Errorf("scan cron job: %w", err)
		}
		j.Timezone = timezone.String
		if lastRunAt.Valid {
			j.LastRunAt = &lastRunAt.Time
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
