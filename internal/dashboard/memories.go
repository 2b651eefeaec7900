package dashboard

import "net/http"

type memoryDTO struct {
	ID        int64          `json:"id"`
	Category  string         `json:"category"`
	Key       string         `json:"key"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// handleListMemories serves every memory, optionally filtered by
// category, matching memories.py's list_memories.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	memories, err := s.store.ListMemories(r.Context(), allUsers, category, memoriesLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]memoryDTO, 0, len(memories))
	for _, m := range memories {
		meta := m.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		out = append(out, memoryDTO{
			ID:        m.ID,
			Category:  m.Category,
			Key:       m.Key,
			Content:   m.Content,
			Metadata:  meta,
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: m.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
