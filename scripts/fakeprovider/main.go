// Fakeprovider is an OpenAI-compatible embeddings backend used for local
// relay testing. It serves /v1/embeddings with deterministic vectors and can
// be flipped into a failure mode at runtime to exercise failover.
//
// Usage:
//
//	go run ./scripts/fakeprovider -port 8081
//	curl -X POST 'http://localhost:8081/admin/fail?on=1'
//
// While failing, every embeddings call returns 503 so the relay's health
// probes and circuit breakers react as they would to a real outage.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"sync/atomic"
	"time"
)

type embeddingsRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsResponse struct {
	Object string          `json:"object"`
	Model  string          `json:"model"`
	Data   []embeddingData `json:"data"`
}

// vectorFor derives a stable unit vector from the text so repeated runs are
// comparable.
func vectorFor(text string, dims int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func inputTexts(input any) []string {
	switch v := input.(type) {
	case string:
		return []string{v}
	case []any:
		texts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				texts = append(texts, s)
			}
		}
		return texts
	default:
		return nil
	}
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	dims := flag.Int("dims", 64, "embedding vector dimensions")
	latency := flag.Duration("latency", 0, "artificial delay per request")
	flag.Parse()

	var failing atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if *latency > 0 {
			time.Sleep(*latency)
		}

		if failing.Load() {
			log.Printf("request: path=%s from=%s -> simulated outage", r.URL.Path, r.RemoteAddr)
			http.Error(w, "simulated outage", http.StatusServiceUnavailable)
			return
		}

		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		texts := inputTexts(req.Input)
		if len(texts) == 0 {
			http.Error(w, "input must be a string or array of strings", http.StatusBadRequest)
			return
		}

		log.Printf("request: path=%s from=%s texts=%d", r.URL.Path, r.RemoteAddr, len(texts))

		resp := embeddingsResponse{Object: "list", Model: req.Model}
		for i, text := range texts {
			resp.Data = append(resp.Data, embeddingData{
				Object:    "embedding",
				Index:     i,
				Embedding: vectorFor(text, *dims),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/admin/fail", func(w http.ResponseWriter, r *http.Request) {
		on := r.URL.Query().Get("on") == "1"
		failing.Store(on)
		log.Printf("failure mode: %v", on)
		fmt.Fprintf(w, "failing=%v\n", on)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting fake embeddings provider on %s (dims=%d)", addr, *dims)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
