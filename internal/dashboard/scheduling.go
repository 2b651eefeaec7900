package dashboard

import (
	"net/http"
	"time"
)

type cronJobDTO struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	CronExpression string  `json:"cron_expression"`
	Prompt         string  `json:"prompt"`
	SessionName    string  `json:"session_name"`
	Isolated       bool    `json:"isolated"`
	Enabled        bool    `json:"enabled"`
	Timezone       string  `json:"timezone"`
	LastRunAt      *string `json:"last_run_at"`
	CreatedAt      string  `json:"created_at"`
}

// handleListCronJobs serves every cron job, matching scheduling.py's
// list_cron_jobs.
func (s *Server) handleListCronJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListCronJobs(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]cronJobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, cronJobDTO{
			ID:             j.ID,
			Name:           j.Name,
			CronExpression: j.CronExpression,
			Prompt:         j.Prompt,
			SessionName:    j.SessionName,
			Isolated:       j.Isolated,
			Enabled:        j.Enabled,
			Timezone:       j.Timezone,
			LastRunAt:      formatTimePtr(j.LastRunAt),
			CreatedAt:      j.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type heartbeatCheckDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Enabled   bool   `json:"enabled"`
	CreatedAt string `json:"created_at"`
}

// handleListHeartbeatChecks serves every heartbeat check, matching
// scheduling.py's list_heartbeat_checks.
func (s *Server) handleListHeartbeatChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := s.store.ListHeartbeatChecks(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]heartbeatCheckDTO, 0, len(checks))
	for _, c := range checks {
		out = append(out, heartbeatCheckDTO{
			ID:        c.ID,
			Name:      c.Name,
			Prompt:    c.Prompt,
			Enabled:   c.Enabled,
			CreatedAt: c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05Z07:00")
	return &s
}
