package main

import (
	"encoding/json"
	"net/http"

	"github.com/codescope/relay/internal/circuitbreaker"
	"github.com/codescope/relay/internal/handler"
	"github.com/codescope/relay/internal/observe"
)

func setupRouter(embedHandler *handler.EmbedHandler, collector *observe.Collector, breakers *circuitbreaker.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/embed", embedHandler.ServeHTTP)
	mux.HandleFunc("/status", collector.StatusHandler())
	mux.HandleFunc("/decisions", collector.DecisionsHandler())
	mux.HandleFunc("/circuits", circuitsHandler(breakers))

	return mux
}

func circuitsHandler(breakers *circuitbreaker.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := make(map[string]string)
		for id, st := range breakers.Stats() {
			states[string(id)] = st.String()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(states); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
