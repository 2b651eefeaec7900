package dashboard

import (
	"net/http"

	"github.com/megobari/megobari/internal/store"
)

const defaultDigestsLimit = 50

type topicDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	EntityCount int    `json:"entity_count"`
	CreatedAt   string `json:"created_at"`
}

// handleMonitorTopics lists every topic with its entity count, matching
// monitoring.py's list_topics.
func (s *Server) handleMonitorTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topics, err := s.store.ListMonitorTopics(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]topicDTO, 0, len(topics))
	for _, t := range topics {
		entities, err := s.store.ListMonitorEntities(ctx, t.ID, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, topicDTO{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Enabled:     t.Enabled,
			EntityCount: len(entities),
			CreatedAt:   t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type entityDTO struct {
	ID            int64  `json:"id"`
	TopicID       int64  `json:"topic_id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	EntityType    string `json:"entity_type"`
	Description   string `json:"description"`
	Enabled       bool   `json:"enabled"`
	ResourceCount int    `json:"resource_count"`
	CreatedAt     string `json:"created_at"`
}

// handleMonitorEntities lists entities, optionally filtered by
// topic_id, matching monitoring.py's list_entities.
func (s *Server) handleMonitorEntities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topicID := queryInt64(r, "topic_id")
	entities, err := s.store.ListMonitorEntities(ctx, topicID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]entityDTO, 0, len(entities))
	for _, e := range entities {
		resources, err := s.store.ListMonitorResources(ctx, e.ID, 0, false)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, entityDTO{
			ID:            e.ID,
			TopicID:       e.TopicID,
			Name:          e.Name,
			URL:           e.URL,
			EntityType:    e.EntityType,
			Description:   e.Description,
			Enabled:       e.Enabled,
			ResourceCount: len(resources),
			CreatedAt:     e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type resourceDTO struct {
	ID            int64   `json:"id"`
	TopicID       int64   `json:"topic_id"`
	EntityID      int64   `json:"entity_id"`
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	ResourceType  string  `json:"resource_type"`
	Enabled       bool    `json:"enabled"`
	LastCheckedAt *string `json:"last_checked_at"`
	LastChangedAt *string `json:"last_changed_at"`
	CreatedAt     string  `json:"created_at"`
}

// handleMonitorResources lists resources, optionally filtered by
// entity_id/topic_id, matching monitoring.py's list_resources.
func (s *Server) handleMonitorResources(w http.ResponseWriter, r *http.Request) {
	entityID := queryInt64(r, "entity_id")
	topicID := queryInt64(r, "topic_id")
	resources, err := s.store.ListMonitorResources(r.Context(), entityID, topicID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]resourceDTO, 0, len(resources))
	for _, res := range resources {
		out = append(out, resourceDTO{
			ID:            res.ID,
			TopicID:       res.TopicID,
			EntityID:      res.EntityID,
			Name:          res.Name,
			URL:           res.URL,
			ResourceType:  res.ResourceType,
			Enabled:       res.Enabled,
			LastCheckedAt: formatTimePtr(res.LastCheckedAt),
			LastChangedAt: formatTimePtr(res.LastChangedAt),
			CreatedAt:     res.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type digestDTO struct {
	ID           int64  `json:"id"`
	TopicID      int64  `json:"topic_id"`
	EntityID     int64  `json:"entity_id"`
	ResourceID   int64  `json:"resource_id"`
	SnapshotID   int64  `json:"snapshot_id"`
	Summary      string `json:"summary"`
	ChangeType   string `json:"change_type"`
	CreatedAt    string `json:"created_at"`
	EntityName   string `json:"entity_name"`
	EntityURL    string `json:"entity_url"`
	ResourceName string `json:"resource_name"`
	ResourceType string `json:"resource_type"`
	ResourceURL  string `json:"resource_url"`
}

// handleMonitorDigests lists recent digests joined with entity/resource
// names, matching monitoring.py's list_digests.
func (s *Server) handleMonitorDigests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topicID := queryInt64(r, "topic_id")
	entityID := queryInt64(r, "entity_id")
	limit, err := queryInt(r, "limit", defaultDigestsLimit, 1, 200)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	digests, err := s.store.ListMonitorDigests(ctx, topicID, entityID, 0, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entities, err := s.store.ListMonitorEntities(ctx, 0, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entityByID := make(map[int64]*store.MonitorEntity, len(entities))
	for _, e := range entities {
		entityByID[e.ID] = e
	}

	resources, err := s.store.ListMonitorResources(ctx, 0, 0, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resourceByID := make(map[int64]*store.MonitorResource, len(resources))
	for _, res := range resources {
		resourceByID[res.ID] = res
	}

	out := make([]digestDTO, 0, len(digests))
	for _, d := range digests {
		dto := digestDTO{
			ID:         d.ID,
			TopicID:    d.TopicID,
			EntityID:   d.EntityID,
			ResourceID: d.ResourceID,
			SnapshotID: d.SnapshotID,
			Summary:    d.Summary,
			ChangeType: d.ChangeType,
			CreatedAt:  d.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if e, ok := entityByID[d.EntityID]; ok {
			dto.EntityName = e.Name
			dto.EntityURL = e.URL
		}
		if res, ok := resourceByID[d.ResourceID]; ok {
			dto.ResourceName = res.Name
			dto.ResourceType = res.ResourceType
			dto.ResourceURL = res.URL
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMonitorReport serves the most recently generated report, plain
// text, matching monitoring.py's get_report.
func (s *Server) handleMonitorReport(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	report, err := s.monitor.LoadReport(topic)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == "" {
		report = "No report available. Generate one with /monitor report [topic]."
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report))
}
