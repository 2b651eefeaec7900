package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// -- Monitor Topics --------------------------------------------------------

// AddMonitorTopic creates a new watch theme, e.g. "competitors".
func (s *Store) AddMonitorTopic(ctx context.Context, name, description string) (*MonitorTopic, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_topics (name, description, enabled, created_at) VALUES (?, ?, 1, ?)
	`, name, nullIfEmpty(description), now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor topic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &MonitorTopic{ID: id, Name: name, Description: description, Enabled: true, CreatedAt: now}, nil
}

// ListMonitorTopics returns all topics, optionally only enabled ones.
func (s *Store) ListMonitorTopics(ctx context.Context, enabledOnly bool) ([]*MonitorTopic, error) {
	query := `SELECT id, name, description, enabled, created_at FROM monitor_topics`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list monitor topics: %w", err)
	}
	defer rows.Close()

	var out []*MonitorTopic
	for rows.Next() {
		var t MonitorTopic
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan monitor topic: %w", err)
		}
		t.Description = description.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

// GetMonitorTopic returns a topic by name, or nil if unknown.
func (s *Store) GetMonitorTopic(ctx context.Context, name string) (*MonitorTopic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, enabled, created_at FROM monitor_topics WHERE name = ?`, name)
	var t MonitorTopic
	var description sql.NullString
	err := row.Scan(&t.ID, &t.Name, &description, &t.Enabled, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor topic: %w", err)
	}
	t.Description = description.String
	return &t, nil
}

// DeleteMonitorTopic removes a topic by name. Cascades to its entities,
// resources, snapshots, digests, and subscribers via ON DELETE CASCADE.
func (s *Store) DeleteMonitorTopic(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_topics WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete monitor topic: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// -- Monitor Entities -------------------------------------------------------

// AddMonitorEntity creates a company/person/project watched within a topic.
func (s *Store) AddMonitorEntity(ctx context.Context, e MonitorEntity) (*MonitorEntity, error) {
	if e.EntityType == "" {
		e.EntityType = "company"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_entities (topic_id, name, url, entity_type, description, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, e.TopicID, e.Name, nullIfEmpty(e.URL), e.EntityType, nullIfEmpty(e.Description), now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	e.ID = id
	e.Enabled = true
	e.CreatedAt = now
	return &e, nil
}

// ListMonitorEntities returns entities, optionally filtered by topic and
// enabled state.
func (s *Store) ListMonitorEntities(ctx context.Context, topicID int64, enabledOnly bool) ([]*MonitorEntity, error) {
	query := `SELECT id, topic_id, name, url, entity_type, description, enabled, created_at FROM monitor_entities WHERE 1=1`
	var args []any
	if topicID != 0 {
		query += ` AND topic_id = ?`
		args = append(args, topicID)
	}
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitor entities: %w", err)
	}
	defer rows.Close()

	var out []*MonitorEntity
	for rows.Next() {
		e, err := scanMonitorEntityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetMonitorEntity returns an entity by name, or nil if unknown.
func (s *Store) GetMonitorEntity(ctx context.Context, name string) (*MonitorEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic_id, name, url, entity_type, description, enabled, created_at
		FROM monitor_entities WHERE name = ?
	`, name)
	var e MonitorEntity
	var url, description sql.NullString
	err := row.Scan(&e.ID, &e.TopicID, &e.Name, &url, &e.EntityType, &description, &e.Enabled, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor entity: %w", err)
	}
	e.URL = url.String
	e.Description = description.String
	return &e, nil
}

// DeleteMonitorEntity removes an entity by name, cascading to its resources.
func (s *Store) DeleteMonitorEntity(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_entities WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete monitor entity: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanMonitorEntityRow(rows *sql.Rows) (*MonitorEntity, error) {
	var e MonitorEntity
	var url, description sql.NullString
	if err := rows.Scan(&e.ID, &e.TopicID, &e.Name, &url, &e.EntityType, &description, &e.Enabled, &e.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan monitor entity: %w", err)
	}
	e.URL = url.String
	e.Description = description.String
	return &e, nil
}

// -- Monitor Resources -------------------------------------------------------

// AddMonitorResource creates a concrete fetchable URL under an entity.
func (s *Store) AddMonitorResource(ctx context.Context, r MonitorResource) (*MonitorResource, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_resources (topic_id, entity_id, name, url, resource_type, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, r.TopicID, r.EntityID, r.Name, r.URL, r.ResourceType, now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor resource: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	r.ID = id
	r.Enabled = true
	r.CreatedAt = now
	return &r, nil
}

// ListMonitorResources returns resources, optionally filtered by entity,
// topic, and enabled state.
func (s *Store) ListMonitorResources(ctx context.Context, entityID, topicID int64, enabledOnly bool) ([]*MonitorResource, error) {
	query := `SELECT id, topic_id, entity_id, name, url, resource_type, enabled, last_checked_at, last_changed_at, created_at
		FROM monitor_resources WHERE 1=1`
	var args []any
	if entityID != 0 {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	if topicID != 0 {
		query += ` AND topic_id = ?`
		args = append(args, topicID)
	}
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitor resources: %w", err)
	}
	defer rows.Close()

	var out []*MonitorResource
	for rows.Next() {
		r, err := scanMonitorResourceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetMonitorResource returns a resource by ID, or nil if unknown.
func (s *Store) GetMonitorResource(ctx context.Context, id int64) (*MonitorResource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic_id, entity_id, name, url, resource_type, enabled, last_checked_at, last_changed_at, created_at
		FROM monitor_resources WHERE id = ?
	`, id)
	r, err := scanMonitorResourceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor resource: %w", err)
	}
	return r, nil
}

// DeleteMonitorResource removes a resource by ID.
func (s *Store) DeleteMonitorResource(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_resources WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete monitor resource: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateMonitorResourceChecked stamps last_checked_at (and last_changed_at
// if changed) to now, after a fetch sweep processes the resource.
func (s *Store) UpdateMonitorResourceChecked(ctx context.Context, id int64, changed bool) error {
	now := time.Now().UTC()
	if changed {
		_, err := s.db.ExecContext(ctx, `UPDATE monitor_resources SET last_checked_at = ?, last_changed_at = ? WHERE id = ?`, now, now, id)
		if err != nil {
			return fmt.Errorf("update monitor resource checked: %w", err)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE monitor_resources SET last_checked_at = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("update monitor resource checked: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitorResourceRow(rows rowScanner) (*MonitorResource, error) {
	var r MonitorResource
	var lastCheckedAt, lastChangedAt sql.NullTime
	if err := rows.Scan(&r.ID, &r.TopicID, &r.EntityID, &r.Name, &r.URL, &r.ResourceType, &r.Enabled, &lastCheckedAt, &lastChangedAt, &r.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan monitor resource: %w", err)
	}
	if lastCheckedAt.Valid {
		r.LastCheckedAt = &lastCheckedAt.Time
	}
	if lastChangedAt.Valid {
		r.LastChangedAt = &lastChangedAt.Time
	}
	return &r, nil
}

// -- Monitor Snapshots -------------------------------------------------------

// AddMonitorSnapshot records one fetch's content hash and rendered markdown.
func (s *Store) AddMonitorSnapshot(ctx context.Context, snap MonitorSnapshot) (*MonitorSnapshot, error) {
	now := time.Now().UTC()
	externalID := xid.New().String()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_snapshots (external_id, topic_id, entity_id, resource_id, content_hash, content_markdown, has_changes, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, externalID, snap.TopicID, snap.EntityID, snap.ResourceID, snap.ContentHash, snap.ContentMarkdown, snap.HasChanges, now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	snap.ID = id
	snap.ExternalID = externalID
	snap.FetchedAt = now
	return &snap, nil
}

// LatestMonitorSnapshot returns the most recent snapshot for a resource, or
// nil if none exists yet (first-ever fetch).
func (s *Store) LatestMonitorSnapshot(ctx context.Context, resourceID int64) (*MonitorSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, topic_id, entity_id, resource_id, content_hash, content_markdown, has_changes, fetched_at
		FROM monitor_snapshots WHERE resource_id = ? ORDER BY fetched_at DESC LIMIT 1
	`, resourceID)
	var snap MonitorSnapshot
	err := row.Scan(&snap.ID, &snap.ExternalID, &snap.TopicID, &snap.EntityID, &snap.ResourceID, &snap.ContentHash, &snap.ContentMarkdown, &snap.HasChanges, &snap.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan monitor snapshot: %w", err)
	}
	return &snap, nil
}

// RecentMonitorSnapshots returns up to limit snapshots for a resource,
// newest first — used to diff the two most recent fetches when summarizing
// a change.
func (s *Store) RecentMonitorSnapshots(ctx context.Context, resourceID int64, limit int) ([]*MonitorSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, topic_id, entity_id, resource_id, content_hash, content_markdown, has_changes, fetched_at
		FROM monitor_snapshots WHERE resource_id = ? ORDER BY fetched_at DESC LIMIT ?
	`, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent monitor snapshots: %w", err)
	}
	defer rows.Close()

	var out []*MonitorSnapshot
	for rows.Next() {
		var snap MonitorSnapshot
		if err := rows.Scan(&snap.ID, &snap.ExternalID, &snap.TopicID, &snap.EntityID, &snap.ResourceID, &snap.ContentHash, &snap.ContentMarkdown, &snap.HasChanges, &snap.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan monitor snapshot: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}

// MonitorDigestExistsForSnapshot reports whether a digest has already been
// recorded for a given snapshot, so the baseline digest pass doesn't
// duplicate work.
func (s *Store) MonitorDigestExistsForSnapshot(ctx context.Context, snapshotID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitor_digests WHERE snapshot_id = ?`, snapshotID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check monitor digest exists: %w", err)
	}
	return n > 0, nil
}

// -- Monitor Digests -------------------------------------------------------

// AddMonitorDigest records a synthesized summary of a detected change.
func (s *Store) AddMonitorDigest(ctx context.Context, d MonitorDigest) (*MonitorDigest, error) {
	now := time.Now().UTC()
	externalID := xid.New().String()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_digests (external_id, topic_id, entity_id, resource_id, snapshot_id, summary, change_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, externalID, d.TopicID, d.EntityID, d.ResourceID, d.SnapshotID, d.Summary, d.ChangeType, now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor digest: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	d.ExternalID = externalID
	d.CreatedAt = now
	return &d, nil
}

// ListMonitorDigests returns digests, most recent first, optionally
// filtered by topic/entity/resource, capped at limit.
func (s *Store) ListMonitorDigests(ctx context.Context, topicID, entityID, resourceID int64, limit int) ([]*MonitorDigest, error) {
	query := `SELECT id, external_id, topic_id, entity_id, resource_id, snapshot_id, summary, change_type, created_at FROM monitor_digests WHERE 1=1`
	var args []any
	if topicID != 0 {
		query += ` AND topic_id = ?`
		args = append(args, topicID)
	}
	if entityID != 0 {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	if resourceID != 0 {
		query += ` AND resource_id = ?`
		args = append(args, resourceID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitor digests: %w", err)
	}
	defer rows.Close()

	var out []*MonitorDigest
	for rows.Next() {
		var d MonitorDigest
		if err := rows.Scan(&d.ID, &d.ExternalID, &d.TopicID, &d.EntityID, &d.ResourceID, &d.SnapshotID, &d.Summary, &d.ChangeType, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan monitor digest: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// -- Monitor Subscribers -------------------------------------------------------

// AddMonitorSubscriber registers a notification channel against a
// topic/entity/resource scope (whichever of the three is non-zero).
func (s *Store) AddMonitorSubscriber(ctx context.Context, sub MonitorSubscriber) (*MonitorSubscriber, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_subscribers (channel_type, channel_config, topic_id, entity_id, resource_id, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, sub.ChannelType, sub.ChannelConfig, nullIfZero(sub.TopicID), nullIfZero(sub.EntityID), nullIfZero(sub.ResourceID), now)
	if err != nil {
		return nil, fmt.Errorf("insert monitor subscriber: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	sub.ID = id
	sub.Enabled = true
	sub.CreatedAt = now
	return &sub, nil
}

// ListMonitorSubscribers returns enabled subscribers matching any of the
// given non-zero scope IDs (an OR across topic/entity/resource), mirroring
// the original's filter semantics.
func (s *Store) ListMonitorSubscribers(ctx context.Context, topicID, entityID, resourceID int64) ([]*MonitorSubscriber, error) {
	query := `SELECT id, channel_type, channel_config, topic_id, entity_id, resource_id, enabled, created_at
		FROM monitor_subscribers WHERE enabled = 1`
	var conds []string
	var args []any
	if topicID != 0 {
		conds = append(conds, `topic_id = ?`)
		args = append(args, topicID)
	}
	if entityID != 0 {
		conds = append(conds, `entity_id = ?`)
		args = append(args, entityID)
	}
	if resourceID != 0 {
		conds = append(conds, `resource_id = ?`)
		args = append(args, resourceID)
	}
	if len(conds) > 0 {
		query += ` AND (`
		for i, c := range conds {
			if i > 0 {
				query += ` OR `
			}
			query += c
		}
		query += `)`
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitor subscribers: %w", err)
	}
	defer rows.Close()

	var out []*MonitorSubscriber
	for rows.Next() {
		var sub MonitorSubscriber
		var topicIDN, entityIDN, resourceIDN sql.NullInt64
		if err := rows.Scan(&sub.ID, &sub.ChannelType, &sub.ChannelConfig, &topicIDN, &entityIDN, &resourceIDN, &sub.Enabled, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan monitor subscriber: %w", err)
		}
		sub.TopicID = topicIDN.Int64
		sub.EntityID = entityIDN.Int64
		sub.ResourceID = resourceIDN.Int64
		out = append(out, &sub)
	}
	return out, rows.Err()
}

// DeleteMonitorSubscriber removes a subscriber by ID.
func (s *Store) DeleteMonitorSubscriber(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitor_subscribers WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete monitor subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullIfZero(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
