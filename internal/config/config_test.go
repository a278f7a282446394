package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
index_dir: ".mdvdb"
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.IndexDir != filepath.Join(dir, ".mdvdb") {
		t.Errorf("index_dir = %s, want under %s", cfg.IndexDir, dir)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Embedding.Dimensions != 8 {
		t.Errorf("dimensions = %d, want 8", cfg.Embedding.Dimensions)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
index_dir: "./data/index"
source_dirs: ["./docs"]
embedding:
  provider: mock
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantIndex := filepath.Join(dir, "data", "index")
	if cfg.IndexDir != wantIndex {
		t.Errorf("index_dir = %s, want %s", cfg.IndexDir, wantIndex)
	}
	if len(cfg.SourceDirs) != 1 {
		t.Fatalf("source dirs: got %d", len(cfg.SourceDirs))
	}
	wantSrc := filepath.Join(dir, "docs")
	if cfg.SourceDirs[0] != wantSrc {
		t.Errorf("source dir = %s, want %s", cfg.SourceDirs[0], wantSrc)
	}
}

func TestLoad_rejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
embedding:
  provider: telepathy
  dimensions: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "openai" || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Dimensions != 1536 || cfg.Embedding.BatchSize != 100 {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Chunking.MaxTokens != 512 || cfg.Chunking.OverlapTokens != 50 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.DefaultMode != "hybrid" {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Search.RRFK != 60 || cfg.Search.BM25NormK != 1.5 || cfg.Search.HeadingBoost != 1.5 {
		t.Errorf("fusion defaults: %+v", cfg.Search)
	}
	if cfg.Watch.DebounceMs != 300 {
		t.Errorf("default debounce: got %d", cfg.Watch.DebounceMs)
	}
	if cfg.Clustering.RebalanceThreshold != 50 {
		t.Errorf("default rebalance threshold: got %d", cfg.Clustering.RebalanceThreshold)
	}
	if !cfg.Clustering.ClusteringEnabled() {
		t.Error("clustering should default to enabled")
	}
	if cfg.FTSDir != ".mdvdb/fts" {
		t.Errorf("fts_dir = %s", cfg.FTSDir)
	}
}

func TestClusterConfig_Enabled(t *testing.T) {
	f := false
	c := &ClusterConfig{Enabled: &f}
	if c.ClusteringEnabled() {
		t.Error("explicit false should disable clustering")
	}
}

func TestValidate_overlapTooLarge(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Chunking.OverlapTokens = cfg.Chunking.MaxTokens
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when overlap >= max tokens")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{Server: ServerConfig{Host: "localhost", Port: 9090}}
	ApplyDefaults(cfg)
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if _, err := Init(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	_, err := Init(path)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second init: got %v, want ErrAlreadyExists", err)
	}
}
