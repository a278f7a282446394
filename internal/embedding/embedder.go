// Package embedding provides text embedding via HTTP providers (OpenAI- and
// Ollama-shaped APIs), a local ONNX runtime, a deterministic mock, plus the
// batch orchestrator and persistent vector cache used by the ingest pipeline.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/config"
)

// ErrAuth indicates the provider rejected the configured credentials.
// It is returned immediately, without retries.
var ErrAuth = errors.New("embedding provider rejected credentials")

// ErrTransient indicates a retryable provider failure (rate limit or server
// error) that persisted through all retry attempts.
var ErrTransient = errors.New("embedding provider transient failure")

// Provider produces vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
	Close() error
}

// NewProvider creates the provider selected by the configuration.
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an API key (config api_key or OPENAI_API_KEY)")
		}
		return NewOpenAIProvider(apiKey, cfg.Model, cfg.Dimensions, cfg.BaseURL, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimensions, logger), nil
	case "onnx":
		return NewONNXProvider(cfg.ModelPath, cfg.Dimensions, 256, 1024)
	case "mock":
		return NewMockProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
