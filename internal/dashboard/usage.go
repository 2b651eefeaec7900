package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/megobari/megobari/internal/store"
)

const defaultUsageRecordsLimit = 50

type usageRecordDTO struct {
	ID           int64   `json:"id"`
	SessionName  string  `json:"session_name"`
	CostUSD      float64 `json:"cost_usd"`
	NumTurns     int     `json:"num_turns"`
	DurationMS   int64   `json:"duration_ms"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CreatedAt    string  `json:"created_at"`
}

func usageRecordDTOsFrom(records []*store.UsageRecord) []usageRecordDTO {
	out := make([]usageRecordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, usageRecordDTO{
			ID:           rec.ID,
			SessionName:  rec.SessionName,
			CostUSD:      rec.CostUSD,
			NumTurns:     rec.NumTurns,
			DurationMS:   rec.DurationMS,
			InputTokens:  rec.InputTokens,
			OutputTokens: rec.OutputTokens,
			CreatedAt:    rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return out
}

// handleTotalUsage serves aggregated usage across all sessions, matching
// usage.py's get_total_usage.
func (s *Server) handleTotalUsage(w http.ResponseWriter, r *http.Request) {
	totals, err := s.store.TotalUsage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// handleUsageRecords serves raw usage records, optionally filtered by
// session, matching usage.py's get_usage_records.
func (s *Server) handleUsageRecords(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	limit, err := queryInt(r, "limit", defaultUsageRecordsLimit, 1, 500)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	records, err := s.store.UsageRecords(r.Context(), session, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, usageRecordDTOsFrom(records))
}

// handleSessionUsage serves aggregated usage for a single session,
// matching usage.py's get_session_usage.
func (s *Server) handleSessionUsage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "session_name")
	totals, err := s.store.SessionUsageTotals(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
