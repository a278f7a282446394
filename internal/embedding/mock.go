package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/mdvdb/pkg/utils"
)

// MockProvider is a deterministic provider for tests and offline use. It
// derives a fixed-dimension unit vector from the text hash so the same text
// always gets the same embedding.
type MockProvider struct {
	dimensions int
}

// NewMockProvider returns a provider producing deterministic embeddings of
// the given dimension.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockProvider{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, p.dimensions)
	for i := 0; i < p.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (p *MockProvider) Dimensions() int { return p.dimensions }

// Name identifies the provider.
func (p *MockProvider) Name() string { return "mock" }

// Close is a no-op.
func (p *MockProvider) Close() error { return nil }
