package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

func hashDashboardToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateDashboardToken stores a new dashboard bearer token, hashed. The
// caller is responsible for handing the raw token to the operator exactly
// once — only the hash and an 8-char display prefix survive. ExternalID is
// the token's public, sortable identifier, safe to surface in Dashboard
// API responses and /dashboard listings instead of the raw rowid.
func (s *Store) CreateDashboardToken(ctx context.Context, name, token string) (*DashboardToken, error) {
	prefix := token
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	now := time.Now().UTC()
	externalID := xid.New().String()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboard_tokens (external_id, name, token_hash, token_prefix, enabled, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`, externalID, name, hashDashboardToken(token), prefix, now)
	if err != nil {
		return nil, fmt.Errorf("insert dashboard token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &DashboardToken{ID: id, ExternalID: externalID, Name: name, TokenPrefix: prefix, Enabled: true, CreatedAt: now}, nil
}

// VerifyDashboardToken looks up a bearer token by its hash. Returns nil if
// unknown or disabled. Bumps last_used_at on success.
func (s *Store) VerifyDashboardToken(ctx context.Context, token string) (*DashboardToken, error) {
	hash := hashDashboardToken(token)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, token_hash, token_prefix, enabled, created_at, last_used_at
		FROM dashboard_tokens WHERE token_hash = ? AND enabled = 1
	`, hash)
	dt, err := scanDashboardToken(row)
	if err != nil || dt == nil {
		return dt, err
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE dashboard_tokens SET last_used_at = ? WHERE id = ?`, now, dt.ID); err != nil {
		return nil, fmt.Errorf("update token last_used_at: %w", err)
	}
	dt.LastUsedAt = &now
	return dt, nil
}

// ListDashboardTokens returns all tokens, newest first.
func (s *Store) ListDashboardTokens(ctx context.Context) ([]*DashboardToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, name, token_hash, token_prefix, enabled, created_at, last_used_at
		FROM dashboard_tokens ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list dashboard tokens: %w", err)
	}
	defer rows.Close()

	var out []*DashboardToken
	for rows.Next() {
		var dt DashboardToken
		var lastUsedAt sql.NullTime
		if err := rows.Scan(&dt.ID, &dt.ExternalID, &dt.Name, &dt.TokenHash, &dt.TokenPrefix, &dt.Enabled, &dt.CreatedAt, &lastUsedAt); err != nil {
			return nil, fmt.Errorf("scan dashboard token: %w", err)
		}
		if lastUsedAt.Valid {
			dt.LastUsedAt = &lastUsedAt.Time
		}
		out = append(out, &dt)
	}
	return out, rows.Err()
}

// ToggleDashboardToken enables or disables a token by ID.
func (s *Store) ToggleDashboardToken(ctx context.Context, id int64, enabled bool) (*DashboardToken, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE dashboard_tokens SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return nil, fmt.Errorf("toggle dashboard token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, token_hash, token_prefix, enabled, created_at, last_used_at
		FROM dashboard_tokens WHERE id = ?
	`, id)
	return scanDashboardToken(row)
}

// DeleteDashboardToken removes a token by ID.
func (s *Store) DeleteDashboardToken(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dashboard_tokens WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete dashboard token: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanDashboardToken(row *sql.Row) (*DashboardToken, error) {
	var dt DashboardToken
	var lastUsedAt sql.NullTime
	err := row.Scan(&dt.ID, &dt.ExternalID, &dt.Name, &dt.TokenHash, &dt.TokenPrefix, &dt.Enabled, &dt.CreatedAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan dashboard token: %w", err)
	}
	if lastUsedAt.Valid {
		dt.LastUsedAt = &lastUsedAt.Time
	}
	return &dt, nil
}
