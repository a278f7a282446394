package embedding

import (
	"testing"

	"github.com/hyperjump/mdvdb/internal/config"
)

func TestNewProviderMock(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: "mock", Dimensions: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "mock" || p.Dimensions() != 8 {
		t.Errorf("provider = %s/%d", p.Name(), p.Dimensions())
	}
}

func TestNewProviderOllama(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{
		Provider: "ollama", Model: "nomic-embed-text", Dimensions: 768,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNewProviderOpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider(config.EmbeddingConfig{
		Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536,
	}, nil)
	if err == nil {
		t.Fatal("expected missing-key error")
	}
}

func TestNewProviderOpenAICustomBaseURLWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p, err := NewProvider(config.EmbeddingConfig{
		Provider: "openai", Model: "m", Dimensions: 4, BaseURL: "http://localhost:9999",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(config.EmbeddingConfig{Provider: "carrier-pigeon"}, nil); err == nil {
		t.Fatal("expected unknown-provider error")
	}
}
