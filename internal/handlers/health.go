package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthPayload is the liveness probe answer.
// Deliberately not wrapped in the API envelope, probes want a flat document
type HealthPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Port      int    `json:"port"`
}

// Health answers the liveness probe with uptime since handler creation
func Health(port int) http.Handler {
	started := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthPayload{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(started).Round(time.Second).String(),
			Port:      port,
		})
	})
}
