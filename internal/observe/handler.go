package observe

import (
	"encoding/json"
	"net/http"
)

// StatusHandler serves the aggregated counters as JSON.
func (c *Collector) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

// DecisionsHandler serves the recent decision window as JSON.
func (c *Collector) DecisionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decisions := c.RecentDecisions()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(decisions); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
