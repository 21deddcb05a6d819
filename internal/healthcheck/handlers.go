package healthcheck

import (
	"encoding/json"
	"net/http"
)

// HealthHandler serves /healthz responses.
func HealthHandler(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusServiceUnavailable
		snapshot := Snapshot{}
		if tracker != nil {
			snapshot = tracker.Snapshot()
			if tracker.Ready() {
				status = http.StatusOK
			}
		}
		writeJSON(w, status, snapshot)
	}
}

// ReadyHandler serves /readyz responses.
func ReadyHandler(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusServiceUnavailable
		snapshot := Snapshot{}
		if tracker != nil {
			snapshot = tracker.Snapshot()
			if tracker.Ready() {
				status = http.StatusOK
			}
		}
		writeJSON(w, status, snapshot)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
