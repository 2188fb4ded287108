package api

import (
	"net/http"
	"time"
)

// StatsProvider reports service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// handleStats serves GET /stats: the provider's snapshot plus the server time.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{}
	if s.statsProvider != nil {
		for k, v := range s.statsProvider.GetStats() {
			body[k] = v
		}
	}
	body["time"] = time.Now().UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, body)
}
