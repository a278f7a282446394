package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if len(cfg.SourceDirs) == 0 {
		cfg.SourceDirs = []string{"."}
	}
	if cfg.IndexDir == "" {
		cfg.IndexDir = ".mdvdb"
	}
	if cfg.FTSDir == "" {
		cfg.FTSDir = cfg.IndexDir + "/fts"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 512
	}
	if cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapTokens = 50
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.DefaultMode == "" {
		cfg.Search.DefaultMode = "hybrid"
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Search.BM25NormK == 0 {
		cfg.Search.BM25NormK = 1.5
	}
	if cfg.Search.DecayHalfLifeDays == 0 {
		cfg.Search.DecayHalfLifeDays = 30
	}
	if cfg.Search.HeadingBoost == 0 {
		cfg.Search.HeadingBoost = 1.5
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 300
	}
	if cfg.Clustering.RebalanceThreshold == 0 {
		cfg.Clustering.RebalanceThreshold = 50
	}
}
