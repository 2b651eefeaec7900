package dashboard

import "net/http"

// handleHealth reports scheduler/session status, matching health.py.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all := s.registry.ListAll()

	withContext := 0
	busy := make([]string, 0)
	for _, sess := range all {
		if sess.AgentThreadID != "" {
			withContext++
		}
		if s.engine.BusySet().IsBusy(sess.Name) {
			busy = append(busy, sess.Name)
		}
	}

	dbStats := map[string]any{}
	if unsummarized, err := s.store.UnsummarizedCount(ctx, s.registry.ActiveName()); err == nil {
		dbStats["unsummarized_messages"] = unsummarized
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bot_running":           true,
		"scheduler_running":     s.scheduler != nil && s.scheduler.Running(),
		"active_session":        s.registry.ActiveName(),
		"busy_sessions":         busy,
		"total_sessions":        len(all),
		"sessions_with_context": withContext,
		"db_stats":              dbStats,
	})
}
