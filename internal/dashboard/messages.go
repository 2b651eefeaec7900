package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/megobari/megobari/internal/store"
)

const defaultRecentMessagesLimit = 30
const defaultSessionMessagesLimit = 50

type messageDTO struct {
	ID          int64  `json:"id"`
	SessionName string `json:"session_name"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	Summarized  bool   `json:"summarized"`
	CreatedAt   string `json:"created_at"`
}

func messageDTOsFrom(msgs []*store.Message) []messageDTO {
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO{
			ID:          m.ID,
			SessionName: m.SessionName,
			Role:        m.Role,
			Content:     m.Content,
			Summarized:  m.Summarized,
			CreatedAt:   m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

// handleRecentMessagesAll serves the cross-session message feed, matching
// messages.py's get_recent_messages_all.
func (s *Server) handleRecentMessagesAll(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRecentMessagesLimit, 1, 200)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	msgs, err := s.store.RecentMessagesAll(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageDTOsFrom(msgs))
}

// handleSessionMessages serves one session's message history for
// display, oldest first, matching messages.py's get_messages (which
// fetches newest-first from the DB and reverses for display; our
// RecentMessages already returns oldest-first, so no reversal is needed
// here).
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "session_name")
	limit, err := queryInt(r, "limit", defaultSessionMessagesLimit, 1, 500)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	msgs, err := s.store.RecentMessages(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messageDTOsFrom(msgs))
}
