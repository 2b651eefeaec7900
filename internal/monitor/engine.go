package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/megobari/megobari/internal/store"
)

// sweepConcurrency bounds how many resources are fetched/checked at once
// during a sweep.
const sweepConcurrency = 4

// Store is the subset of *store.Store the Monitor Engine reads/writes.
type Store interface {
	GetMonitorTopic(ctx context.Context, name string) (*store.MonitorTopic, error)
	ListMonitorTopics(ctx context.Context, enabledOnly bool) ([]*store.MonitorTopic, error)
	GetMonitorEntity(ctx context.Context, name string) (*store.MonitorEntity, error)
	ListMonitorEntities(ctx context.Context, topicID int64, enabledOnly bool) ([]*store.MonitorEntity, error)
	ListMonitorResources(ctx context.Context, entityID, topicID int64, enabledOnly bool) ([]*store.MonitorResource, error)
	GetMonitorResource(ctx context.Context, id int64) (*store.MonitorResource, error)
	AddMonitorSnapshot(ctx context.Context, snap store.MonitorSnapshot) (*store.MonitorSnapshot, error)
	LatestMonitorSnapshot(ctx context.Context, resourceID int64) (*store.MonitorSnapshot, error)
	RecentMonitorSnapshots(ctx context.Context, resourceID int64, limit int) ([]*store.MonitorSnapshot, error)
	UpdateMonitorResourceChecked(ctx context.Context, id int64, changed bool) error
	AddMonitorDigest(ctx context.Context, d store.MonitorDigest) (*store.MonitorDigest, error)
	ListMonitorDigests(ctx context.Context, topicID, entityID, resourceID int64, limit int) ([]*store.MonitorDigest, error)
	MonitorDigestExistsForSnapshot(ctx context.Context, snapshotID int64) (bool, error)
	ListMonitorSubscribers(ctx context.Context, topicID, entityID, resourceID int64) ([]*store.MonitorSubscriber, error)
}

// Engine ties the Store, Fetcher, and agent Runner together to implement
// the fetch → hash → diff → summarize → digest → notify pipeline.
// Grounded 1:1 on monitor.py's module-level functions.
type Engine struct {
	store      Store
	fetcher    Fetcher
	runner     Runner
	cwd        string
	reportsDir string

	log zerolog.Logger
}

// New builds an Engine. cwd is the working directory ad hoc agent prompts
// run under; reportsDir is where generated reports are saved/loaded.
func New(st Store, fetcher Fetcher, runner Runner, cwd, reportsDir string, log zerolog.Logger) *Engine {
	return &Engine{
		store:      st,
		fetcher:    fetcher,
		runner:     runner,
		cwd:        cwd,
		reportsDir: reportsDir,
		log:        log.With().Str("component", "monitor").Logger(),
	}
}

// CheckResult is the outcome of fetching and hashing one resource.
type CheckResult struct {
	ResourceID  int64
	HasChanges  bool
	IsBaseline  bool
	ContentHash string
	SnapshotID  int64
	TopicID     int64
	EntityID    int64
}

// Digest is a synthesized summary of a detected (or baseline) change,
// shaped for both persistence and notification formatting.
type Digest struct {
	DigestID     int64
	ExternalID   string
	ResourceID   int64
	ResourceName string
	EntityName   string
	TopicID      int64
	EntityID     int64
	SnapshotID   int64
	Summary      string
	ChangeType   string
}

// CheckResource fetches a single resource's current content, hashes it,
// diffs against the latest prior snapshot, and writes a new snapshot
// unconditionally. Returns nil (no error) if the resource doesn't exist
// or the fetch failed — both are "skip this resource" outcomes, not fatal
// ones, matching check_resource's logged-and-skipped error handling.
func (e *Engine) CheckResource(ctx context.Context, resourceID int64) (*CheckResult, error) {
	resource, err := e.store.GetMonitorResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load monitor resource: %w", err)
	}
	if resource == nil {
		e.log.Warn().Int64("resource_id", resourceID).Msg("resource not found")
		return nil, nil
	}
	return e.checkResource(ctx, resource)
}

func (e *Engine) checkResource(ctx context.Context, resource *store.MonitorResource) (*CheckResult, error) {
	markdown, err := e.fetcher.Fetch(ctx, resource.ResourceType, resource.URL)
	if err != nil {
		e.log.Warn().Err(err).Int64("resource_id", resource.ID).Str("url", resource.URL).Msg("failed to fetch resource")
		return nil, nil
	}

	contentHash := computeContentHash(markdown)

	latest, err := e.store.LatestMonitorSnapshot(ctx, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	isBaseline := latest == nil
	hasChanges := !isBaseline && latest.ContentHash != contentHash

	snap, err := e.store.AddMonitorSnapshot(ctx, store.MonitorSnapshot{
		TopicID:         resource.TopicID,
		EntityID:        resource.EntityID,
		ResourceID:      resource.ID,
		ContentHash:     contentHash,
		ContentMarkdown: markdown,
		HasChanges:      hasChanges,
	})
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	if err := e.store.UpdateMonitorResourceChecked(ctx, resource.ID, hasChanges); err != nil {
		return nil, fmt.Errorf("update resource checked: %w", err)
	}

	return &CheckResult{
		ResourceID:  resource.ID,
		HasChanges:  hasChanges,
		IsBaseline:  isBaseline,
		ContentHash: contentHash,
		SnapshotID:  snap.ID,
		TopicID:     resource.TopicID,
		EntityID:    resource.EntityID,
	}, nil
}

// RunSweep checks every enabled resource in the given scope (optionally
// narrowed by topic and/or entity name) and returns digests for every
// resource that changed and was successfully summarized.
func (e *Engine) RunSweep(ctx context.Context, topicName, entityName string) ([]Digest, error) {
	resources, err := e.resolveScope(ctx, topicName, entityName)
	if err != nil || resources == nil {
		return nil, err
	}

	results := make([]*CheckResult, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, resource := range resources {
		i, resource := i, resource
		g.Go(func() error {
			res, err := e.checkResource(gctx, resource)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var digests []Digest
	dg, dgctx := errgroup.WithContext(ctx)
	dg.SetLimit(sweepConcurrency)
	for i, result := range results {
		if result == nil || result.IsBaseline || !result.HasChanges {
			continue
		}
		resource := resources[i]
		dg.Go(func() error {
			snaps, err := e.store.RecentMonitorSnapshots(dgctx, resource.ID, 2)
			if err != nil {
				return fmt.Errorf("load recent snapshots: %w", err)
			}
			if len(snaps) < 2 {
				return nil
			}
			newSnap, prevSnap := snaps[0], snaps[1]

			summary, err := summarizeChanges(dgctx, e.runner, e.cwd, resource.Name, resource.ResourceType, prevSnap.ContentMarkdown, newSnap.ContentMarkdown)
			if err != nil {
				e.log.Warn().Err(err).Int64("resource_id", resource.ID).Msg("failed to summarize change")
				return nil
			}

			d, err := e.store.AddMonitorDigest(dgctx, store.MonitorDigest{
				TopicID:    result.TopicID,
				EntityID:   result.EntityID,
				ResourceID: resource.ID,
				SnapshotID: result.SnapshotID,
				Summary:    summary.Summary,
				ChangeType: summary.ChangeType,
			})
			if err != nil {
				return fmt.Errorf("add digest: %w", err)
			}

			mu.Lock()
			digests = append(digests, Digest{
				DigestID:     d.ID,
				ExternalID:   d.ExternalID,
				ResourceID:   resource.ID,
				ResourceName: resource.Name,
				TopicID:      result.TopicID,
				EntityID:     result.EntityID,
				SnapshotID:   result.SnapshotID,
				Summary:      summary.Summary,
				ChangeType:   summary.ChangeType,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := dg.Wait(); err != nil {
		return nil, err
	}

	return digests, nil
}

// resolveScope resolves topicName/entityName (if given) to IDs and lists
// the matching enabled resources. Returns (nil, nil) if a named topic or
// entity can't be found, matching the original's "log and return empty".
func (e *Engine) resolveScope(ctx context.Context, topicName, entityName string) ([]*store.MonitorResource, error) {
	var topicID, entityID int64

	if topicName != "" {
		topic, err := e.store.GetMonitorTopic(ctx, topicName)
		if err != nil {
			return nil, fmt.Errorf("load topic: %w", err)
		}
		if topic == nil {
			e.log.Warn().Str("topic", topicName).Msg("topic not found")
			return nil, nil
		}
		topicID = topic.ID
	}
	if entityName != "" {
		entity, err := e.store.GetMonitorEntity(ctx, entityName)
		if err != nil {
			return nil, fmt.Errorf("load entity: %w", err)
		}
		if entity == nil {
			e.log.Warn().Str("entity", entityName).Msg("entity not found")
			return nil, nil
		}
		entityID = entity.ID
	}

	resources, err := e.store.ListMonitorResources(ctx, 0, topicID, true)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if entityID != 0 {
		filtered := resources[:0]
		for _, r := range resources {
			if r.EntityID == entityID {
				filtered = append(filtered, r)
			}
		}
		resources = filtered
	}
	return resources, nil
}

// GenerateBaselineDigests summarizes every latest snapshot that has no
// digest yet, tagging each with change_type "baseline".
func (e *Engine) GenerateBaselineDigests(ctx context.Context, topicName string) ([]Digest, error) {
	var topicID int64
	if topicName != "" {
		topic, err := e.store.GetMonitorTopic(ctx, topicName)
		if err != nil {
			return nil, fmt.Errorf("load topic: %w", err)
		}
		if topic == nil {
			e.log.Warn().Str("topic", topicName).Msg("topic not found")
			return nil, nil
		}
		topicID = topic.ID
	}

	resources, err := e.store.ListMonitorResources(ctx, 0, topicID, true)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	var digests []Digest
	for _, resource := range resources {
		latest, err := e.store.LatestMonitorSnapshot(ctx, resource.ID)
		if err != nil {
			return nil, fmt.Errorf("load latest snapshot: %w", err)
		}
		if latest == nil {
			continue
		}
		exists, err := e.store.MonitorDigestExistsForSnapshot(ctx, latest.ID)
		if err != nil {
			return nil, fmt.Errorf("check digest exists: %w", err)
		}
		if exists {
			continue
		}

		entityName := e.entityNameByID(ctx, resource.EntityID)

		summary, err := summarizeBaseline(ctx, e.runner, e.cwd, resource.ResourceType, entityName, latest.ContentMarkdown)
		if err != nil {
			e.log.Warn().Err(err).Int64("resource_id", resource.ID).Msg("failed to summarize baseline")
			continue
		}

		d, err := e.store.AddMonitorDigest(ctx, store.MonitorDigest{
			TopicID:    resource.TopicID,
			EntityID:   resource.EntityID,
			ResourceID: resource.ID,
			SnapshotID: latest.ID,
			Summary:    summary.Summary,
			ChangeType: "baseline",
		})
		if err != nil {
			return nil, fmt.Errorf("add digest: %w", err)
		}

		digests = append(digests, Digest{
			DigestID:     d.ID,
			ExternalID:   d.ExternalID,
			ResourceID:   resource.ID,
			ResourceName: resource.Name,
			EntityName:   entityName,
			TopicID:      resource.TopicID,
			EntityID:     resource.EntityID,
			SnapshotID:   latest.ID,
			Summary:      summary.Summary,
			ChangeType:   "baseline",
		})
	}
	return digests, nil
}

// entityNameByID is a best-effort lookup used only for prompt context; a
// failure degrades to "Unknown" rather than aborting the baseline pass.
func (e *Engine) entityNameByID(ctx context.Context, entityID int64) string {
	entities, err := e.store.ListMonitorEntities(ctx, 0, false)
	if err != nil {
		return "Unknown"
	}
	for _, ent := range entities {
		if ent.ID == entityID {
			return ent.Name
		}
	}
	return "Unknown"
}

// sortEntityIDsByName sorts entity IDs by entity name for deterministic report
// section ordering.
func sortEntityIDsByName(entityMap map[int64]*store.MonitorEntity) []int64 {
	ids := make([]int64, 0, len(entityMap))
	for id := range entityMap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return entityMap[ids[i]].Name < entityMap[ids[j]].Name
	})
	return ids
}
