package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertUser records a Telegram user, updating last_seen_at if it already
// exists, matching the original's onupdate=_utcnow behavior.
func (s *Store) UpsertUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			last_seen_at = excluded.last_seen_at
	`, telegramID, username, firstName, lastName, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUserByTelegramID(ctx, telegramID)
}

// GetUserByTelegramID returns a user by Telegram ID, or nil if unknown.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, telegram_id, username, first_name, last_name, created_at, last_seen_at
		FROM users WHERE telegram_id = ?
	`, telegramID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var username, firstName, lastName sql.NullString
	err := row.Scan(&u.ID, &u.TelegramID, &username, &firstName, &lastName, &u.CreatedAt, &u.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Username = username.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	return &u, nil
}
