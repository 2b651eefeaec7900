package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response already started; nothing more we can do but log would
		// need a logger reference the package-level helper doesn't have.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// queryInt parses the key query parameter as an int, returning def if the
// parameter is absent. Returns an error if the raw value doesn't parse as
// an integer or falls outside [min, max], matching the original's
// Query(def, ge=min, le=max) validation — callers turn that error into a
// 422 response.
func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}
	return n, nil
}

func queryInt64(r *http.Request, key string) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0
	}
	return n
}
