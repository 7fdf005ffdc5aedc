// Package config provides configuration loading and structs for the storyfind server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Refiner   RefinerConfig   `yaml:"refiner"`
	Search    SearchConfig    `yaml:"search"`
	Build     BuildConfig     `yaml:"build"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// IndexConfig says where the two index artifacts live and how to hydrate them.
type IndexConfig struct {
	// Source is one of local, s3, minio.
	Source string `yaml:"source"`
	// Path is the artifact directory for local sources.
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint overrides the object store endpoint (required for minio).
	Endpoint         string        `yaml:"endpoint"`
	UseSSL           *bool         `yaml:"use_ssl"`
	AccessKeyID      string        `yaml:"access_key_id"`
	SecretAccessKey  string        `yaml:"secret_access_key"`
	StagingDir       string        `yaml:"staging_dir"`
	Metric           string        `yaml:"metric"`
	Compression      string        `yaml:"compression"`
	HydrationTimeout time.Duration `yaml:"hydration_timeout"`
	Warm             *bool         `yaml:"warm"`
}

// UseSSLOrDefault returns whether to use TLS for the object store; defaults to true when unset.
func (c *IndexConfig) UseSSLOrDefault() bool {
	if c.UseSSL != nil {
		return *c.UseSSL
	}
	return true
}

// WarmOrDefault returns whether the server hydrates the index at startup; defaults to true.
func (c *IndexConfig) WarmOrDefault() bool {
	if c.Warm != nil {
		return *c.Warm
	}
	return true
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of openai, gemini, onnx, mock.
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RefinerConfig controls query refinement.
type RefinerConfig struct {
	Enabled *bool `yaml:"enabled"`
	// Provider is one of openai, anthropic, gemini.
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EnabledOrDefault returns whether refinement runs; defaults to true when unset.
func (c *RefinerConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// SearchConfig holds result count limits.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
}

// BuildConfig holds offline index build settings.
type BuildConfig struct {
	// Input is a story catalogue: .jsonl, .yaml, .xlsx, .db or .sqlite.
	Input string `yaml:"input"`
	// Output is the directory receiving the artifacts.
	Output    string `yaml:"output"`
	TextField string `yaml:"text_field"`
	// Table and Sheet select the source inside sqlite and xlsx catalogues.
	Table string `yaml:"table"`
	Sheet string `yaml:"sheet"`
}

var (
	validSources    = []string{"local", "s3", "minio"}
	validEmbedders  = []string{"openai", "gemini", "onnx", "mock"}
	validGenerators = []string{"openai", "anthropic", "gemini"}
	validMetrics    = []string{"l2", "cosine"}
)

// Load reads and parses the config file at path, expands paths, applies environment
// overrides and defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.Getenv)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	cfg.Index.StagingDir = expandPath(cfg.Index.StagingDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Build.Input = expandPath(cfg.Build.Input, configDir)
	cfg.Build.Output = expandPath(cfg.Build.Output, configDir)

	return &cfg, nil
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

// ApplyEnv fills secrets and a few deployment settings from the environment. Values already
// present in the file win over OPENAI_API_KEY style fallbacks but lose to STORYFIND_ variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	override := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	fallback := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		override(dst, keys...)
	}

	override(&cfg.Index.Source, "STORYFIND_INDEX_SOURCE")
	override(&cfg.Index.Path, "STORYFIND_INDEX_PATH")
	override(&cfg.Index.Bucket, "STORYFIND_INDEX_BUCKET")
	override(&cfg.Index.Prefix, "STORYFIND_INDEX_PREFIX")

	override(&cfg.Embedding.APIKey, "STORYFIND_EMBEDDING_API_KEY")
	override(&cfg.Refiner.APIKey, "STORYFIND_REFINER_API_KEY")

	switch cfg.Embedding.Provider {
	case "openai", "":
		fallback(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	case "gemini":
		fallback(&cfg.Embedding.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	switch cfg.Refiner.Provider {
	case "openai", "":
		fallback(&cfg.Refiner.APIKey, "OPENAI_API_KEY")
	case "anthropic":
		fallback(&cfg.Refiner.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		fallback(&cfg.Refiner.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}

	if cfg.Index.Source == "minio" {
		fallback(&cfg.Index.AccessKeyID, "MINIO_ACCESS_KEY", "MINIO_ROOT_USER")
		fallback(&cfg.Index.SecretAccessKey, "MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	}
}

// Validate reports every configuration problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Index.Source, validSources) {
		errs = append(errs, fmt.Errorf("index.source %q: must be one of %s", c.Index.Source, strings.Join(validSources, ", ")))
	}
	switch c.Index.Source {
	case "local":
		if c.Index.Path == "" {
			errs = append(errs, errors.New("index.path is required for local source"))
		}
	case "s3":
		if c.Index.Bucket == "" {
			errs = append(errs, errors.New("index.bucket is required for s3 source"))
		}
	case "minio":
		if c.Index.Bucket == "" || c.Index.Endpoint == "" {
			errs = append(errs, errors.New("index.bucket and index.endpoint are required for minio source"))
		}
	}
	if !oneOf(c.Index.Metric, validMetrics) {
		errs = append(errs, fmt.Errorf("index.metric %q: must be one of %s", c.Index.Metric, strings.Join(validMetrics, ", ")))
	}
	if !oneOf(c.Embedding.Provider, validEmbedders) {
		errs = append(errs, fmt.Errorf("embedding.provider %q: must be one of %s", c.Embedding.Provider, strings.Join(validEmbedders, ", ")))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if c.Refiner.EnabledOrDefault() && !oneOf(c.Refiner.Provider, validGenerators) {
		errs = append(errs, fmt.Errorf("refiner.provider %q: must be one of %s", c.Refiner.Provider, strings.Join(validGenerators, ", ")))
	}
	if c.Search.DefaultK <= 0 || c.Search.MaxK < c.Search.DefaultK {
		errs = append(errs, fmt.Errorf("search: need 0 < default_k (%d) <= max_k (%d)", c.Search.DefaultK, c.Search.MaxK))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
