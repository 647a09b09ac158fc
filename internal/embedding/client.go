package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/codescope/relay/internal/provider"
)

// OperationEmbed is the request operation handled by this adapter. The
// payload is a []string of texts; the response payload is [][]float32.
const OperationEmbed = "embed"

const probeText = "ping"

// Options configure one embedding backend instance.
type Options struct {
	// BaseURL of the OpenAI-compatible API.
	BaseURL string
	// Model is the embedding model name.
	Model string
	// Token authenticates the API; local services accept any value.
	Token string
}

// Client implements provider.Client over an OpenAI-compatible embedding API.
type Client struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// Compile-time interface assertion.
var _ provider.Client = (*Client)(nil)

// NewClient creates an embedding client for the given backend.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	token := opts.Token
	if token == "" {
		// Local OpenAI-compatible services don't require authentication.
		token = "none"
	}

	llm, err := openai.New(
		openai.WithBaseURL(opts.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(opts.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return newClient(embedder, logger), nil
}

// newClient is the internal constructor; tests inject a fake embedder here.
func newClient(embedder embeddings.Embedder, logger *slog.Logger) *Client {
	return &Client{
		embedder: embedder,
		logger:   logger,
	}
}

// Call embeds the request's texts.
func (c *Client) Call(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if req.Operation != OperationEmbed {
		return nil, fmt.Errorf("unsupported operation %q", req.Operation)
	}

	texts, ok := req.Payload.([]string)
	if !ok {
		return nil, fmt.Errorf("embed payload must be []string, got %T", req.Payload)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed payload cannot be empty")
	}

	c.logger.Debug("generating embeddings", slog.Int("texts", len(texts)))

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	return &provider.Response{Payload: vectors}, nil
}

// Probe embeds one short string as a synthetic reachability check.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.embedder.EmbedDocuments(ctx, []string{probeText})
	return err
}
