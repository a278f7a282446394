// Package config provides configuration loading and structs for the mdvdb engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file written by init and looked up by the CLI.
const DefaultFileName = ".mdvdb.yml"

// ErrAlreadyExists is returned by Init when a config file is already present.
var ErrAlreadyExists = errors.New("config file already exists")

// Config holds all configuration for the engine. Values are treated as
// immutable once an index is opened.
type Config struct {
	Debug      bool            `yaml:"debug"`
	SourceDirs []string        `yaml:"source_dirs"`
	IndexDir   string          `yaml:"index_dir"`
	FTSDir     string          `yaml:"fts_dir"`
	Ignore     []string        `yaml:"ignore_patterns"`
	Server     ServerConfig    `yaml:"server"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Chunking   ChunkingConfig  `yaml:"chunking"`
	Search     SearchConfig    `yaml:"search"`
	Watch      WatchConfig     `yaml:"watch"`
	Clustering ClusterConfig   `yaml:"clustering"`
}

// ServerConfig holds HTTP server settings for the serve subcommand.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EmbeddingConfig holds provider settings. APIKey may also come from the
// environment (OPENAI_API_KEY); it is never logged.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai | ollama | onnx | mock
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	ModelPath  string `yaml:"model_path"` // onnx only
}

// ChunkingConfig holds section splitting parameters.
type ChunkingConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultLimit      int     `yaml:"default_limit"`
	DefaultMinScore   float64 `yaml:"default_min_score"`
	DefaultMode       string  `yaml:"default_mode"`
	RRFK              float64 `yaml:"rrf_k"`
	BM25NormK         float64 `yaml:"bm25_norm_k"`
	DecayEnabled      bool    `yaml:"decay_enabled"`
	DecayHalfLifeDays float64 `yaml:"decay_half_life_days"`
	HeadingBoost      float64 `yaml:"heading_boost"`
}

// WatchConfig holds filesystem watch settings.
type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// ClusterConfig holds clustering settings.
type ClusterConfig struct {
	Enabled            *bool `yaml:"enabled"`
	RebalanceThreshold int   `yaml:"rebalance_threshold"`
}

// ClusteringEnabled reports whether clustering runs; defaults to true when unset.
func (c *ClusterConfig) ClusteringEnabled() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// IndexPath returns the path of the vector index file.
func (c *Config) IndexPath() string {
	return filepath.Join(c.IndexDir, "index.mdvdb")
}

// CachePath returns the path of the embedding cache database.
func (c *Config) CachePath() string {
	return filepath.Join(c.IndexDir, "embeddings.db")
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths relative to the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.IndexDir = expandPath(cfg.IndexDir, configDir)
	cfg.FTSDir = expandPath(cfg.FTSDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.SourceDirs {
		cfg.SourceDirs[i] = expandPath(cfg.SourceDirs[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunk overlap (%d) must be smaller than max tokens (%d)",
			c.Chunking.OverlapTokens, c.Chunking.MaxTokens)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama", "onnx", "mock":
	default:
		return fmt.Errorf("unknown embedding provider: %q", c.Embedding.Provider)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Init writes a default config file at path. Fails with ErrAlreadyExists if
// the file is already present.
func Init(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	var cfg Config
	ApplyDefaults(&cfg)
	if err := Save(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandPath converts a path to absolute. Relative paths are resolved
// against configDir; a leading "~" expands to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
		return path
	}
	return filepath.Join(configDir, path)
}
