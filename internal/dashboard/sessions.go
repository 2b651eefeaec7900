package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
)

type sessionDTO struct {
	Name               string  `json:"name"`
	IsActive           bool    `json:"is_active"`
	IsBusy             bool    `json:"is_busy"`
	HasContext         bool    `json:"has_context"`
	Streaming          bool    `json:"streaming"`
	PermissionMode     string  `json:"permission_mode"`
	Model              string  `json:"model"`
	Thinking           string  `json:"thinking"`
	Effort             string  `json:"effort"`
	Cwd                string  `json:"cwd"`
	CreatedAt          string  `json:"created_at"`
	LastUsedAt         string  `json:"last_used_at"`
	CurrentRunCostUSD  float64 `json:"current_run_cost"`
	CurrentRunMessages int     `json:"current_run_messages"`
}

// handleListSessions lists every session with live status, matching
// sessions.py's list_sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	active := s.registry.ActiveName()
	all := s.registry.ListAll()

	out := make([]sessionDTO, 0, len(all))
	for _, sess := range all {
		usage := s.engine.SessionUsage(sess.Name)
		out = append(out, sessionDTOFrom(sess, active, s.engine.BusySet().IsBusy(sess.Name), usage.CostUSD, usage.NumTurns))
	}
	writeJSON(w, http.StatusOK, out)
}

func sessionDTOFrom(sess *sessionstore.Session, activeName string, busy bool, runCost float64, runMessages int) sessionDTO {
	return sessionDTO{
		Name:               sess.Name,
		IsActive:           sess.Name == activeName,
		IsBusy:             busy,
		HasContext:         sess.AgentThreadID != "",
		Streaming:          sess.Streaming,
		PermissionMode:     string(sess.PermissionMode),
		Model:              sess.ModelID,
		Thinking:           string(sess.ThinkingMode),
		Effort:             string(sess.EffortLevel),
		Cwd:                sess.Cwd,
		CreatedAt:          sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastUsedAt:         sess.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		CurrentRunCostUSD:  runCost,
		CurrentRunMessages: runMessages,
	}
}

type sessionDetailDTO struct {
	Name           string             `json:"name"`
	HasContext     bool               `json:"has_context"`
	IsActive       bool               `json:"is_active"`
	IsBusy         bool               `json:"is_busy"`
	Streaming      bool               `json:"streaming"`
	PermissionMode string             `json:"permission_mode"`
	Model          string             `json:"model"`
	Thinking       string             `json:"thinking"`
	Effort         string             `json:"effort"`
	Cwd            string             `json:"cwd"`
	Dirs           []string           `json:"dirs"`
	CreatedAt      string             `json:"created_at"`
	LastUsedAt     string             `json:"last_used_at"`
	CurrentRun     currentRunDTO      `json:"current_run"`
	AllTime        *store.UsageTotals `json:"all_time"`
	RecentMessages []recentMessageDTO `json:"recent_messages"`
}

type recentMessageDTO struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

const recentMessageContentCap = 300

func recentMessageDTOsFrom(msgs []*store.Message) []recentMessageDTO {
	out := make([]recentMessageDTO, 0, len(msgs))
	for _, m := range msgs {
		content := m.Content
		if len(content) > recentMessageContentCap {
			content = content[:recentMessageContentCap]
		}
		out = append(out, recentMessageDTO{
			Role:      m.Role,
			Content:   content,
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

type currentRunDTO struct {
	CostUSD      float64 `json:"cost_usd"`
	Messages     int     `json:"messages"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
}

// handleSessionDetail serves one session's detail, matching
// sessions.py's get_session_detail.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sess := s.registry.Get(name)
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session '"+name+"' not found")
		return
	}

	ctx := r.Context()
	allTime, err := s.store.SessionUsageTotals(ctx, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := s.store.RecentMessages(ctx, name, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	usage := s.engine.SessionUsage(name)
	writeJSON(w, http.StatusOK, sessionDetailDTO{
		Name:           sess.Name,
		HasContext:     sess.AgentThreadID != "",
		IsActive:       sess.Name == s.registry.ActiveName(),
		IsBusy:         s.engine.BusySet().IsBusy(sess.Name),
		Streaming:      sess.Streaming,
		PermissionMode: string(sess.PermissionMode),
		Model:          sess.ModelID,
		Thinking:       string(sess.ThinkingMode),
		Effort:         string(sess.EffortLevel),
		Cwd:            sess.Cwd,
		Dirs:           sess.Dirs,
		CreatedAt:      sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		LastUsedAt:     sess.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		CurrentRun: currentRunDTO{
			CostUSD:      usage.CostUSD,
			Messages:     usage.NumTurns,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		},
		AllTime:        allTime,
		RecentMessages: recentMessageDTOsFrom(recent),
	})
}
