package config

import (
	"path/filepath"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 10
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Index.Source == "" {
		cfg.Index.Source = "local"
	}
	if cfg.Index.Source == "local" && cfg.Index.Path == "" {
		cfg.Index.Path = "/usr/local/var/storyfind/data/index"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "l2"
	}
	if cfg.Index.Compression == "" {
		cfg.Index.Compression = "none"
	}
	if cfg.Index.HydrationTimeout == 0 {
		cfg.Index.HydrationTimeout = 2 * time.Minute
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-ada-002"
		case "gemini":
			cfg.Embedding.Model = "text-embedding-004"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Dimensions = 1536
		case "gemini":
			cfg.Embedding.Dimensions = 768
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/storyfind/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 15 * time.Second
	}

	if cfg.Refiner.Provider == "" {
		cfg.Refiner.Provider = "openai"
	}
	if cfg.Refiner.Model == "" {
		switch cfg.Refiner.Provider {
		case "openai":
			cfg.Refiner.Model = "gpt-4o-mini"
		case "anthropic":
			cfg.Refiner.Model = "claude-3-5-haiku-latest"
		case "gemini":
			cfg.Refiner.Model = "gemini-2.0-flash"
		}
	}
	if cfg.Refiner.MaxTokens == 0 {
		cfg.Refiner.MaxTokens = 64
	}
	if cfg.Refiner.Timeout == 0 {
		cfg.Refiner.Timeout = 5 * time.Second
	}

	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 3
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}

	if cfg.Build.TextField == "" {
		cfg.Build.TextField = "text"
	}
	if cfg.Build.Table == "" {
		cfg.Build.Table = "stories"
	}
	if cfg.Build.Output == "" && cfg.Index.Source == "local" {
		cfg.Build.Output = cfg.Index.Path
	}
	if cfg.Build.Output == "" {
		cfg.Build.Output = filepath.Join(".", "index")
	}
}
