package store

import (
	"context"
	"fmt"
)

// HealthCounts are the row counts /doctor reports as a DB connectivity
// check.
type HealthCounts struct {
	Users     int
	Memories  int
	Summaries int
	Messages  int
}

// Health runs one row-count query per table, doubling as a connectivity
// check for /doctor.
func (s *Store) Health(ctx context.Context) (*HealthCounts, error) {
	var h HealthCounts
	for table, dst := range map[string]*int{
		"users":                  &h.Users,
		"memories":               &h.Memories,
		"conversation_summaries": &h.Summaries,
		"messages":               &h.Messages,
	} {
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
	}
	return &h, nil
}
