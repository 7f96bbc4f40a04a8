package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any, logger zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string, logger zerolog.Logger) {
	writeJSON(w, status, map[string]string{"error": message}, logger)
}

// ParseLimitParam parses the limit query parameter.
// Returns defaultLimit if the parameter is missing or invalid, and caps it at maxLimit.
func ParseLimitParam(r *http.Request, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
