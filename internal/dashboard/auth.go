package dashboard

import (
	"net/http"
	"strings"
)

// requireAuth validates the Authorization: Bearer <token> header against
// the dashboard_tokens table, mirroring auth.py's require_auth dependency.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		dt, err := s.store.VerifyDashboardToken(r.Context(), token)
		if err != nil {
			s.log.Error().Err(err).Msg("verify dashboard token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if dt == nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// wsAuthenticate validates the token query param used by the WebSocket
// upgrade route, which can't set an Authorization header (ws.py's
// _ws_authenticate).
func (s *Server) wsAuthenticate(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		return false
	}
	dt, err := s.store.VerifyDashboardToken(r.Context(), token)
	if err != nil || dt == nil {
		return false
	}
	return true
}
