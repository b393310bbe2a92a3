package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/peekdeck/peekdeck/internal/lifecycle"
	redisstore "github.com/peekdeck/peekdeck/internal/store/redis"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps persistence and lifecycle errors onto HTTP
// statuses. Unknown errors become a 500 with a generic message so
// internal details never leak to the dashboard.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case redisstore.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrRefreshInFlight):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, lifecycle.ErrWidgetDisabled):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
