package dashboard

import (
	"net/http"

	"github.com/megobari/megobari/internal/store"
)

const defaultSummariesLimit = 50

type summaryDTO struct {
	ID           int64    `json:"id"`
	SessionName  string   `json:"session_name"`
	Summary      string   `json:"summary"`
	ShortSummary string   `json:"short_summary"`
	Topics       []string `json:"topics"`
	MessageCount int      `json:"message_count"`
	IsMilestone  bool     `json:"is_milestone"`
	CreatedAt    string   `json:"created_at"`
}

func summaryDTOsFrom(summaries []*store.ConversationSummary) []summaryDTO {
	out := make([]summaryDTO, 0, len(summaries))
	for _, sm := range summaries {
		topics := sm.Topics
		if topics == nil {
			topics = []string{}
		}
		out = append(out, summaryDTO{
			ID:           sm.ID,
			SessionName:  sm.SessionName,
			Summary:      sm.Summary,
			ShortSummary: sm.ShortSummary,
			Topics:       topics,
			MessageCount: sm.MessageCount,
			IsMilestone:  sm.IsMilestone,
			CreatedAt:    sm.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

// handleSummaries serves conversation summaries, optionally filtered by
// session, matching summaries.py's get_summaries.
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	limit, err := queryInt(r, "limit", defaultSummariesLimit, 1, 200)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	summaries, err := s.store.Summaries(r.Context(), session, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaryDTOsFrom(summaries))
}
