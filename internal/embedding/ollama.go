package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaProvider talks to a local Ollama server's embed endpoint.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// NewOllamaProvider creates an Ollama provider. baseURL may be empty for the
// default local server.
func NewOllamaProvider(baseURL, model string, dimensions int, logger *zap.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed embeds a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call, returning vectors in input order.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp ollamaResponse
	url := p.baseURL + "/api/embed"
	req := ollamaRequest{Model: p.model, Input: texts}
	if err := postJSON(ctx, p.client, url, nil, req, &resp, p.logger); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d embeddings for %d inputs",
			len(resp.Embeddings), len(texts))
	}
	for _, vec := range resp.Embeddings {
		if p.dimensions > 0 && len(vec) != p.dimensions {
			return nil, fmt.Errorf("ollama embed: vector has %d dimensions, configured %d",
				len(vec), p.dimensions)
		}
	}
	return resp.Embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (p *OllamaProvider) Dimensions() int { return p.dimensions }

// Name identifies the provider.
func (p *OllamaProvider) Name() string { return "ollama" }

// Close is a no-op.
func (p *OllamaProvider) Close() error { return nil }
