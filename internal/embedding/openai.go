package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIProvider talks to an OpenAI-shaped embeddings API. A custom base URL
// makes it usable against any compatible endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible provider. baseURL may be
// empty for the official endpoint.
func NewOpenAIProvider(apiKey, model string, dimensions int, baseURL string, logger *zap.Logger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call, returning vectors in input order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	var resp openAIResponse
	url := p.baseURL + "/v1/embeddings"
	req := openAIRequest{Model: p.model, Input: texts}
	if err := postJSON(ctx, p.client, url, headers, req, &resp, p.logger); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vecs := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if p.dimensions > 0 && len(d.Embedding) != p.dimensions {
			return nil, fmt.Errorf("openai embed: vector has %d dimensions, configured %d",
				len(d.Embedding), p.dimensions)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// Name identifies the provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Close is a no-op.
func (p *OpenAIProvider) Close() error { return nil }
