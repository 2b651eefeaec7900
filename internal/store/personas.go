package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreatePersona inserts a named persona. Returns an error if the name is
// already taken (UNIQUE constraint on name).
func (s *Store) CreatePersona(ctx context.Context, p Persona) (*Persona, error) {
	mcpServers, err := encodeJSON(p.MCPServers)
	if err != nil {
		return nil, err
	}
	skills, err := encodeJSON(p.Skills)
	if err != nil {
		return nil, err
	}
	config, err := encodeJSON(p.Config)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO personas (name, description, system_prompt, mcp_servers, skills, config, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Description, p.SystemPrompt, mcpServers, skills, config, p.IsDefault, now)
	if err != nil {
		return nil, fmt.Errorf("insert persona: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.ID = id
	p.CreatedAt = now
	return &p, nil
}

// GetPersona returns a persona by name, or nil if unknown.
func (s *Store) GetPersona(ctx context.Context, name string) (*Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, system_prompt, mcp_servers, skills, config, is_default, created_at
		FROM personas WHERE name = ?
	`, name)
	return scanPersona(row)
}

// DefaultPersona returns the persona flagged is_default, or nil if none.
func (s *Store) DefaultPersona(ctx context.Context) (*Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, system_prompt, mcp_servers, skills, config, is_default, created_at
		FROM personas WHERE is_default = 1 LIMIT 1
	`)
	return scanPersona(row)
}

// ListPersonas returns all personas in creation order.
func (s *Store) ListPersonas(ctx context.Context) ([]*Persona, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, system_prompt, mcp_servers, skills, config, is_default, created_at
		FROM personas ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var out []*Persona
	for rows.Next() {
		var p Persona
		var description, systemPrompt, mcpServers, skills, config sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &systemPrompt, &mcpServers, &skills, &config, &p.IsDefault, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		p.Description = description.String
		p.SystemPrompt = systemPrompt.String
		p.MCPServers = decodeStringSlice(mcpServers.String)
		p.Skills = decodeStringSlice(skills.String)
		p.Config = decodeStringMap(config.String)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SetDefaultPersona clears is_default on every persona and sets it on the
// named one. Returns the persona, or nil if the name is unknown.
func (s *Store) SetDefaultPersona(ctx context.Context, name string) (*Persona, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE personas SET is_default = 0`)
	if err != nil {
		return nil, fmt.Errorf("clear default persona: %w", err)
	}
	_ = res
	if _, err := tx.ExecContext(ctx, `UPDATE personas SET is_default = 1 WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("set default persona: %w", err)
	}
	row := tx.QueryRowContext(ctx, `
		SELECT id, name, description, system_prompt, mcp_servers, skills, config, is_default, created_at
		FROM personas WHERE name = ?
	`, name)
	p, err := scanPersona(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePersona removes a persona by name. Returns false if it did not exist.
func (s *Store) DeletePersona(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM personas WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete persona: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PersonaUpdate carries the optional fields /persona prompt|mcp|skills can
// change. A nil field is left untouched.
type PersonaUpdate struct {
	SystemPrompt *string
	MCPServers   []string
	Skills       []string
}

// UpdatePersona applies a partial update to a persona by name. Returns nil
// if the name is unknown.
func (s *Store) UpdatePersona(ctx context.Context, name string, upd PersonaUpdate) (*Persona, error) {
	existing, err := s.GetPersona(ctx, name)
	if err != nil || existing == nil {
		return nil, err
	}
	if upd.SystemPrompt != nil {
		existing.SystemPrompt = *upd.SystemPrompt
	}
	if upd.MCPServers != nil {
		existing.MCPServers = upd.MCPServers
	}
	if upd.Skills != nil {
		existing.Skills = upd.Skills
	}
	mcpServers, err := encodeJSON(existing.MCPServers)
	if err != nil {
		return nil, err
	}
	skills, err := encodeJSON(existing.Skills)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE personas SET system_prompt = ?, mcp_servers = ?, skills = ? WHERE name = ?
	`, existing.SystemPrompt, mcpServers, skills, name); err != nil {
		return nil, fmt.Errorf("update persona: %w", err)
	}
	return existing, nil
}

func scanPersona(row *sql.Row) (*Persona, error) {
	var p Persona
	var description, systemPrompt, mcpServers, skills, config sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &systemPrompt, &mcpServers, &skills, &config, &p.IsDefault, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan persona: %w", err)
	}
	p.Description = description.String
	p.SystemPrompt = systemPrompt.String
	p.MCPServers = decodeStringSlice(mcpServers.String)
	p.Skills = decodeStringSlice(skills.String)
	p.Config = decodeStringMap(config.String)
	return &p, nil
}
