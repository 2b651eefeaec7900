// Package store is the embedded SQLite persistence layer: messages,
// summaries, memories, usage records, cron jobs, heartbeat checks, the
// monitor engine's topic/entity/resource/snapshot/digest tables, and
// dashboard tokens. The Session Registry lives separately in
// sessionstore, which persists to a flat JSON5 file instead.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store/migrations"
)

// Store wraps a single *sql.DB handle. SQLite serializes writes internally;
// callers share one Store across goroutines.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the SQLite database at dsn and applies
// any pending migrations. dsn may be a file path or ":memory:" for tests.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// SQLITE_BUSY errors under concurrent access from the bridge's goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components that need ad-hoc queries (e.g.
// the dashboard's read-only endpoints).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("query schema_migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	names, err := migrationNames(migrations.FS)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES (?)`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		s.log.Info().Str("migration", name).Msg("applied migration")
	}
	return nil
}

func migrationNames(fsys embed.FS) ([]string, error) {
	entries, err := fsys.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
