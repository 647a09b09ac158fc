package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/codescope/relay/internal/embedding"
	"github.com/codescope/relay/internal/failover"
	"github.com/codescope/relay/internal/provider"
)

// EmbedRequest is the JSON payload of POST /embed.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse carries the generated vectors.
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type errorResponse struct {
	Error    string           `json:"error"`
	Attempts []attemptSummary `json:"attempts,omitempty"`
}

type attemptSummary struct {
	Provider string `json:"provider"`
	Cause    string `json:"cause"`
}

// EmbedHandler routes embedding requests through the failover coordinator.
type EmbedHandler struct {
	logger      *slog.Logger
	coordinator *failover.Coordinator
}

func NewEmbedHandler(logger *slog.Logger, coordinator *failover.Coordinator) *EmbedHandler {
	return &EmbedHandler{
		logger:      logger,
		coordinator: coordinator,
	}
}

func (h *EmbedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(req.Texts) == 0 {
		http.Error(w, "texts cannot be empty", http.StatusBadRequest)
		return
	}

	h.logger.Info("Received embed request",
		slog.Int("texts", len(req.Texts)),
		slog.String("from", r.RemoteAddr))

	resp, err := h.coordinator.Execute(r.Context(), provider.CapabilityEmbedding, &provider.Request{
		Operation: embedding.OperationEmbed,
		Payload:   req.Texts,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	vectors, ok := resp.Payload.([][]float32)
	if !ok {
		http.Error(w, "unexpected backend payload", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(EmbedResponse{Embeddings: vectors}); err != nil {
		h.logger.Error("Failed to encode response", slog.Any("err", err))
	}
}

// writeError maps routing errors to HTTP statuses, preserving the full
// attempt history so callers can see which backends were tried and why
// each failed.
func (h *EmbedHandler) writeError(w http.ResponseWriter, err error) {
	var allFailed *failover.AllProvidersFailedError
	var cancelled *failover.CancelledError

	switch {
	case errors.As(err, &allFailed):
		h.logger.Warn("All providers failed", slog.Any("err", err))
		writeJSONError(w, http.StatusBadGateway, err.Error(), allFailed.Attempts)

	case errors.As(err, &cancelled):
		writeJSONError(w, http.StatusGatewayTimeout, err.Error(), cancelled.Attempts)

	case errors.Is(err, provider.ErrUnknownCapability):
		writeJSONError(w, http.StatusNotFound, err.Error(), nil)

	default:
		h.logger.Error("Unexpected routing error", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string, attempts []failover.Attempt) {
	body := errorResponse{Error: msg}
	for _, attempt := range attempts {
		cause := ""
		if attempt.Err != nil {
			cause = attempt.Err.Error()
		}
		body.Attempts = append(body.Attempts, attemptSummary{
			Provider: string(attempt.Provider),
			Cause:    cause,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
