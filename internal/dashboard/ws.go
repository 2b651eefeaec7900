package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

type wsMessageFrame struct {
	ID          int64  `json:"id"`
	SessionName string `json:"session_name"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
}

// handleWS streams newly logged messages in real time. Auth is via a
// ?token= query param rather than the Authorization header, since
// browsers can't set arbitrary headers on a WebSocket upgrade (ws.py's
// ws_messages).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.wsAuthenticate(r) {
		conn, err := websocket.Accept(w, r, nil)
		if err == nil {
			conn.Close(websocket.StatusPolicyViolation, "Unauthorized")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("ws accept")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(wsMessageFrame{
				ID:          event.ID,
				SessionName: event.SessionName,
				Role:        event.Role,
				Content:     event.Content,
				CreatedAt:   event.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			})
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
